package api

import (
	"fmt"
	"net/url"

	"github.com/ruteri/device-onboarding-backend/interfaces"
	"github.com/ruteri/device-onboarding-backend/onboarding"
)

// EventNotification is the body of an S3 event notification. Only the
// fields needed to locate the created objects are decoded.
type EventNotification struct {
	Records []EventRecord `json:"Records"`
}

// EventRecord is one entry of an S3 event notification.
type EventRecord struct {
	EventSource string `json:"eventSource"`
	EventName   string `json:"eventName"`
	S3          struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			// Key is URL-encoded, with spaces as '+'.
			Key string `json:"key"`
		} `json:"object"`
	} `json:"s3"`
}

// Location decodes the record location the event refers to.
func (r EventRecord) Location() (interfaces.RecordLocation, error) {
	key, err := url.QueryUnescape(r.S3.Object.Key)
	if err != nil {
		return interfaces.RecordLocation{}, fmt.Errorf("%w: object key: %v", interfaces.ErrInvalidLocation, err)
	}

	loc := interfaces.RecordLocation{Container: r.S3.Bucket.Name, Key: key}
	if err := loc.Validate(); err != nil {
		return interfaces.RecordLocation{}, err
	}
	return loc, nil
}

// OnboardRequest asks the server to onboard a single record.
type OnboardRequest struct {
	Bucket string `json:"bucket" validate:"required"`
	Key    string `json:"key" validate:"required"`
}

// Location returns the requested record location.
func (r OnboardRequest) Location() interfaces.RecordLocation {
	return interfaces.RecordLocation{Container: r.Bucket, Key: r.Key}
}

// RecordResponse reports the onboarding result of one record.
type RecordResponse struct {
	Location  interfaces.RecordLocation `json:"location"`
	State     onboarding.State          `json:"state"`
	FailedAt  onboarding.State          `json:"failed_at,omitempty"`
	Retryable bool                      `json:"retryable"`
	Error     string                    `json:"error,omitempty"`

	Identity    string `json:"identity,omitempty"`
	Group       string `json:"group,omitempty"`
	Certificate string `json:"certificate_id,omitempty"`

	// DeleteError is set when a completed record could not be deleted.
	DeleteError string `json:"delete_error,omitempty"`
}

// NewRecordResponse converts a workflow result.
func NewRecordResponse(res *onboarding.Result) RecordResponse {
	resp := RecordResponse{
		Location:  res.Location,
		State:     res.State,
		FailedAt:  res.FailedAt,
		Retryable: res.Retryable(),
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	if res.DeleteErr != nil {
		resp.DeleteError = res.DeleteErr.Error()
	}
	if res.Claim != nil {
		resp.Identity = res.Claim.IdentityName
	}
	if res.Outcome != nil {
		resp.Identity = res.Outcome.Identity.Name
		resp.Group = res.Outcome.Group.Name
		resp.Certificate = res.Outcome.Principal.ID
	}
	return resp
}

// EventsResponse is the reply to an event notification.
type EventsResponse struct {
	Records []RecordResponse `json:"records"`
}
