package monitoring

import (
	"fmt"
	"sort"
	"strings"

	"command-center/core/models"
	"command-center/core/repository"
)

// allStatuses is reported even when no job holds the status, so series never vanish
var allStatuses = []models.JobStatus{
	models.JobStatusBooting,
	models.JobStatusGenerating,
	models.JobStatusConnecting,
	models.JobStatusUploadingContext,
	models.JobStatusPlanning,
	models.JobStatusWaitingApproval,
	models.JobStatusWorking,
	models.JobStatusPrReady,
	models.JobStatusMerged,
	models.JobStatusFailed,
}

// MetricsExporter exports registry metrics in the Prometheus text format
type MetricsExporter struct {
	registry *repository.JobRegistry
}

// NewMetricsExporter creates a new metrics exporter
func NewMetricsExporter(registry *repository.JobRegistry) *MetricsExporter {
	return &MetricsExporter{registry: registry}
}

// GetPrometheusMetrics returns metrics in Prometheus format
func (me *MetricsExporter) GetPrometheusMetrics() string {
	counts := me.registry.CountByStatus()
	var b strings.Builder

	// statuses outside the known set still show up
	var extra []string
	for status := range counts {
		if !knownStatus(status) {
			extra = append(extra, string(status))
		}
	}
	sort.Strings(extra)

	b.WriteString("# HELP command_center_jobs Jobs held in the registry by status\n")
	b.WriteString("# TYPE command_center_jobs gauge\n")
	total, active := 0, 0
	for _, status := range allStatuses {
		fmt.Fprintf(&b, "command_center_jobs{status=%q} %d\n", status, counts[status])
	}
	for _, status := range extra {
		fmt.Fprintf(&b, "command_center_jobs{status=%q} %d\n", status, counts[models.JobStatus(status)])
	}
	for status, n := range counts {
		total += n
		if !status.IsTerminal() {
			active += n
		}
	}

	b.WriteString("# HELP command_center_jobs_active Jobs still running a pipeline\n")
	b.WriteString("# TYPE command_center_jobs_active gauge\n")
	fmt.Fprintf(&b, "command_center_jobs_active %d\n", active)

	b.WriteString("# HELP command_center_jobs_registered Jobs held in the registry\n")
	b.WriteString("# TYPE command_center_jobs_registered gauge\n")
	fmt.Fprintf(&b, "command_center_jobs_registered %d\n", total)

	b.WriteString("# HELP command_center_jobs_by_variant Jobs held in the registry by pipeline variant\n")
	b.WriteString("# TYPE command_center_jobs_by_variant gauge\n")
	byVariant := me.ByVariant()
	for _, v := range []models.Variant{models.VariantScaffold, models.VariantUplink, models.VariantRemote} {
		fmt.Fprintf(&b, "command_center_jobs_by_variant{variant=%q} %d\n", v, byVariant[v])
	}

	return b.String()
}

// ByVariant returns the number of registered jobs per variant
func (me *MetricsExporter) ByVariant() map[models.Variant]int {
	out := make(map[models.Variant]int)
	for _, job := range me.registry.List() {
		out[job.Variant]++
	}
	return out
}

func knownStatus(s models.JobStatus) bool {
	for _, known := range allStatuses {
		if known == s {
			return true
		}
	}
	return false
}
