package model

import (
	"encoding/json"
	"strings"
)

// JobRequest is the body of a job submission to the generation API.
type JobRequest struct {
	Character string `json:"character"`
	Reference string `json:"reference"`
	Ratio     string `json:"ratio"`
	Model     string `json:"model"`
}

// JobAccepted is returned when the generation API accepts a submission.
type JobAccepted struct {
	ID string `json:"id"`
}

// JobReport is the polled state of an external job.
type JobReport struct {
	ID      string    `json:"id,omitempty"`
	Status  string    `json:"status"`
	Output  JobOutput `json:"output,omitempty"`
	Error   string    `json:"error,omitempty"`
	Failure string    `json:"failure,omitempty"`
}

// ErrorText returns the failure message reported by the API, if any.
func (r *JobReport) ErrorText() string {
	if r.Error != "" {
		return r.Error
	}
	return r.Failure
}

// JobOutput is the output location of a finished job. The API reports it as
// a bare string, a list of strings or an object with a uri field.
type JobOutput struct {
	URI string `json:"uri,omitempty"`
}

func (o *JobOutput) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	switch trimmed[0] {
	case '"':
		return json.Unmarshal(data, &o.URI)
	case '[':
		var uris []string
		if err := json.Unmarshal(data, &uris); err != nil {
			return err
		}
		if len(uris) > 0 {
			o.URI = uris[0]
		}
		return nil
	}
	var obj struct {
		URI string `json:"uri"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	o.URI = obj.URI
	if o.URI == "" {
		o.URI = obj.URL
	}
	return nil
}
