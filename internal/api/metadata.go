package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/sqlanalyst/sqlanalyst/internal/config"
	"github.com/sqlanalyst/sqlanalyst/internal/warehouse"
)

type category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type metricInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var fallbackCategories = []category{
	{ID: "1", Name: "Photo"},
	{ID: "2", Name: "Video"},
	{ID: "3", Name: "Graphic"},
}

var metricCatalog = []metricInfo{
	{Name: "total_revenue", Description: "Total revenue (USD)"},
	{Name: "order_count", Description: "Number of orders"},
	{Name: "customer_count", Description: "Unique customers"},
	{Name: "asset_count", Description: "Unique assets"},
}

func categoriesSQL(schemaPrefix string) string {
	table := "V_GOLD_FACT_ITEM_ORDERED"
	if prefix := strings.Trim(strings.TrimSpace(schemaPrefix), "."); prefix != "" {
		table = prefix + "." + table
	}
	return fmt.Sprintf(`SELECT DISTINCT MEDIA_TYPE AS NAME
FROM %s
WHERE MEDIA_TYPE IS NOT NULL
ORDER BY MEDIA_TYPE`, table)
}

// handleCategories lists media types from the warehouse and falls back to a
// static list when the warehouse cannot answer.
func handleCategories(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Warehouse == nil {
		writeJSON(w, http.StatusOK, fallbackCategories)
		return
	}

	result := warehouse.NewExecutor(deps.Warehouse, warehouse.DefaultMaxRows, deps.Logger).Execute(r.Context(), categoriesSQL(cfg.Agent.SchemaPrefix))
	if result.Failed() {
		if deps.Logger != nil {
			deps.Logger.WarnContext(r.Context(), "category lookup failed, using fallback", slog.String("error", result.Err))
		}
		writeJSON(w, http.StatusOK, fallbackCategories)
		return
	}

	categories := make([]category, 0, len(result.Rows))
	for i, row := range result.Rows {
		values := row.Values()
		if len(values) == 0 || values[0] == nil {
			continue
		}
		categories = append(categories, category{ID: strconv.Itoa(i + 1), Name: fmt.Sprint(values[0])})
	}
	writeJSON(w, http.StatusOK, categories)
}
