package constants

// JobKind identifies what a consumed job asks the pipeline to do.
type JobKind string

// Stable values (carried in dead-letter headers and logs).
const (
	JobKindOCRAndStore     JobKind = "ocr_and_store"     // extract + persist, no comparison
	JobKindCompareAndStore JobKind = "compare_and_store" // full compare pipeline
	JobKindMaintenance     JobKind = "maintenance_rescan"
)

// MaintenanceAction selects the operation of a maintenance job.
type MaintenanceAction string

const (
	MaintenanceRescan   MaintenanceAction = "rescan"
	MaintenancePurgeAll MaintenanceAction = "purge_all"
)

// KindForQueue maps a consumed queue to the job kind processed from it.
func KindForQueue(queue string) (JobKind, bool) {
	switch queue {
	case OCRImageQueue:
		return JobKindOCRAndStore, true
	case CompareImagesQueue:
		return JobKindCompareAndStore, true
	case MaintenanceQueue:
		return JobKindMaintenance, true
	default:
		return "", false
	}
}
