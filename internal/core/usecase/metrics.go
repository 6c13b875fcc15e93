package usecase

import (
	"time"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
	"github.com/alikoudar/irobot-sub000/internal/core/ports"
)

type nopMetrics struct{}

func (nopMetrics) ObserveCacheLookup(domain.CacheStatus, time.Duration) {}
func (nopMetrics) ObserveRetrieval(int, time.Duration, error) {}
func (nopMetrics) ObserveRerank(bool, time.Duration) {}
func (nopMetrics) ObserveGeneration(string, int, int, time.Duration, error) {}
func (nopMetrics) ObserveCacheWrite(string) {}
func (nopMetrics) ObserveInvalidation(int) {}
func (nopMetrics) ObservePurge(int) {}

func metricsOrNop(m ports.PipelineMetrics) ports.PipelineMetrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
