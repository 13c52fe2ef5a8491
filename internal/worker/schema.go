package worker

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/antonkozlov/imgmatch/constants"
	"github.com/antonkozlov/imgmatch/internal/common"
	"github.com/antonkozlov/imgmatch/internal/entity"
)

// Job payloads are validated at the boundary so malformed messages are
// rejected deterministically instead of failing somewhere inside the
// pipeline.
const taskSchemaJSON = `{
	"type": "object",
	"required": ["job_id", "image_path"],
	"properties": {
		"job_id":      {"type": "string", "minLength": 1},
		"image_id":    {"type": "string"},
		"image_path":  {"type": "string", "minLength": 1},
		"enqueued_at": {"type": "string"}
	}
}`

const maintenanceSchemaJSON = `{
	"type": "object",
	"required": ["job_id"],
	"properties": {
		"job_id": {"type": "string", "minLength": 1},
		"action": {"type": "string", "enum": ["rescan", "purge_all"]}
	}
}`

var (
	taskSchema        = jsonschema.MustCompileString("task.json", taskSchemaJSON)
	maintenanceSchema = jsonschema.MustCompileString("maintenance.json", maintenanceSchemaJSON)
)

// ParseJob validates and decodes a message consumed from queue. Any failure
// is a MalformedJobError (permanent, never retried).
func ParseJob(queue string, body []byte) (*entity.Job, error) {
	kind, ok := constants.KindForQueue(queue)
	if !ok {
		return nil, common.MalformedJobError(fmt.Sprintf("unknown queue %q", queue), nil)
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, common.MalformedJobError("payload is not valid JSON", err)
	}

	schema := taskSchema
	if kind == constants.JobKindMaintenance {
		schema = maintenanceSchema
	}
	if err := schema.Validate(raw); err != nil {
		return nil, common.MalformedJobError("payload failed schema validation", err)
	}

	var job entity.Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, common.MalformedJobError("payload does not decode into a job", err)
	}
	job.Kind = kind
	return &job, nil
}
