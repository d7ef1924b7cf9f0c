package alerts

import (
	"context"
	"errors"
	"strings"

	"github.com/garnizeh/campuscare/internal/models"
)

// CallInstruction tells the client which emergency call to place.
type CallInstruction struct {
	URI    string `json:"uri"`
	Number string `json:"number"`
}

// Dialer produces the outbound call instruction for a saved alert.
type Dialer interface {
	Dial(ctx context.Context, a models.Alert) (CallInstruction, error)
}

// TelDialer hands out a tel: URI for a fixed emergency number.
type TelDialer struct {
	Number string
}

func (d TelDialer) Dial(ctx context.Context, a models.Alert) (CallInstruction, error) {
	n := strings.TrimSpace(d.Number)
	if n == "" {
		return CallInstruction{}, errors.New("no emergency number configured")
	}
	return CallInstruction{URI: "tel:" + n, Number: n}, nil
}
