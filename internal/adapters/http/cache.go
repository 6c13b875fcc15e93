package httpadapter

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type removedResponse struct {
	Removed int `json:"removed"`
}

func (rt *Router) cacheStats(w http.ResponseWriter, r *http.Request) {
	days, err := bindDays(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	stats, err := rt.services.Cache.StatisticsForDays(r.Context(), days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": stats})
}

func (rt *Router) exportCacheStats(w http.ResponseWriter, r *http.Request) {
	days, err := bindDays(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	stats, err := rt.services.Cache.StatisticsForDays(r.Context(), days)
	if err != nil {
		writeError(w, r, err)
		return
	}

	book, err := statsWorkbook(stats)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer book.Close()

	filename := fmt.Sprintf("cache-stats-%s.xlsx", rt.now().Format("2006-01-02"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if err := book.Write(w); err != nil {
		slog.Error("stats_export_write_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
	}
}

var statsHeader = []any{
	"Date", "Total requests", "Cache hits", "Cache misses", "Hit rate (%)", "Tokens saved", "Cost saved (USD)", "Cost saved (XAF)",
}

func statsWorkbook(stats []domain.DailyCacheStatistics) (*excelize.File, error) {
	book := excelize.NewFile()
	const sheet = "Cache statistics"
	if err := book.SetSheetName("Sheet1", sheet); err != nil {
		_ = book.Close()
		return nil, fmt.Errorf("name stats sheet: %w", err)
	}
	if err := book.SetSheetRow(sheet, "A1", &statsHeader); err != nil {
		_ = book.Close()
		return nil, fmt.Errorf("write stats header: %w", err)
	}
	for i, day := range stats {
		row := []any{
			day.Date.Format(time.DateOnly), day.TotalRequests, day.CacheHits, day.CacheMisses,
			day.HitRate, day.TokensSaved, day.CostSaved.USD, day.CostSaved.XAF,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			_ = book.Close()
			return nil, fmt.Errorf("stats cell name: %w", err)
		}
		if err := book.SetSheetRow(sheet, cell, &row); err != nil {
			_ = book.Close()
			return nil, fmt.Errorf("write stats row: %w", err)
		}
	}
	return book, nil
}

func (rt *Router) purgeCache(w http.ResponseWriter, r *http.Request) {
	removed, err := rt.services.Cache.PurgeExpired(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, removedResponse{Removed: removed})
}

func (rt *Router) resetCacheEntryTTL(w http.ResponseWriter, r *http.Request) {
	id, err := bindPathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	entry, err := rt.services.Cache.ResetTTL(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (rt *Router) invalidateDocumentCache(w http.ResponseWriter, r *http.Request) {
	documentID, err := bindPathID(r, "documentID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	removed, err := rt.services.Cache.InvalidateDocument(r.Context(), documentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, removedResponse{Removed: removed})
}
