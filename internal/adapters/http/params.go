package httpadapter

import (
	"net/http"
	"strings"

	"github.com/oapi-codegen/runtime"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
)

const defaultStatsDays = 7

func bindPathID(r *http.Request, name string) (string, error) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", name, r.PathValue(name), &id, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "bind path parameter "+name, err)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "bind path parameter "+name, errEmptyParameter)
	}
	return id, nil
}

func bindDays(r *http.Request) (int, error) {
	var days *int
	if err := runtime.BindQueryParameter("form", true, false, "days", r.URL.Query(), &days); err != nil {
		return 0, domain.WrapError(domain.ErrInvalidInput, "bind query parameter days", err)
	}
	if days == nil {
		return defaultStatsDays, nil
	}
	return *days, nil
}
