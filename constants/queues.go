package constants

// Queue and exchange names shared with producers. Stable wire values.
const (
	OCRImageQueue      = "ocr_image_queue"
	CompareImagesQueue = "compare_images_queue"
	ResponseQueue      = "response_queue"
	MaintenanceQueue   = "maintenance_queue"

	DLXExchange   = "dlx_exchange"
	DLXQueue      = "dlx_queue"
	DLXRoutingKey = "rejected"
)
