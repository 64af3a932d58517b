package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/pixgrade/internal/viewer"
)

// StateResponse is the viewer state returned by GET /api/state and carried
// by frame.updated events. Version increases with every published frame.
type StateResponse struct {
	viewer.Snapshot
	Version uint64 `json:"version"`
}

// KeyRequest is the body of POST /api/keys.
type KeyRequest struct {
	Key string `json:"key" example:"n"`
}

// Validate checks that the key is present and bound.
func (k KeyRequest) Validate() error {
	return validation.ValidateStruct(&k,
		validation.Field(&k.Key, validation.Required, validation.By(boundKey)),
	)
}

func boundKey(value any) error {
	key, _ := value.(string)
	if _, ok := viewer.KeyEvent(key); !ok {
		return validation.NewError("validation_key_unbound", "is not a viewer key")
	}
	return nil
}

// KeyResponse acknowledges a queued key event.
type KeyResponse struct {
	Key    string `json:"key"`
	Queued bool   `json:"queued"`
}
