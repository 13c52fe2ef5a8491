package worker

import (
	"encoding/json"

	"github.com/antonkozlov/imgmatch/internal/core"
	"github.com/antonkozlov/imgmatch/internal/entity"
)

// responseMessage is the result contract published to the response queue.
type responseMessage struct {
	JobID          string          `json:"job_id"`
	ImageID        string          `json:"image_id,omitempty"`
	ImagePath      string          `json:"image_path"`
	RecognizedText string          `json:"recognized_text,omitempty"`
	SimilarImages  []similarImage  `json:"similar_images"`
}

type similarImage struct {
	ImageID        string  `json:"image_id,omitempty"`
	ImagePath      string  `json:"image_path"`
	Similarity     float64 `json:"similarity"`
	RecognizedText string  `json:"recognized_text,omitempty"`
}

func buildResponse(job *entity.Job, res *core.Result) ([]byte, error) {
	msg := responseMessage{
		JobID:         job.JobID,
		ImageID:       job.ImageID,
		ImagePath:     job.ImagePath,
		SimilarImages: make([]similarImage, 0, len(res.Matches)),
	}
	if res.Record != nil && res.Record.Text != nil {
		msg.RecognizedText = res.Record.Text.ComparisonText()
	}
	for _, m := range res.Matches {
		s := similarImage{
			ImageID:    m.Record.ImageID,
			ImagePath:  m.Record.ImagePath,
			Similarity: m.Verdict.SimilarityPercent(),
		}
		if m.Record.Text != nil {
			s.RecognizedText = m.Record.Text.ComparisonText()
		}
		msg.SimilarImages = append(msg.SimilarImages, s)
	}
	return json.Marshal(msg)
}
