package advisor

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownCrop is returned for crops outside Crops.
var ErrUnknownCrop = errors.New("advisor: unknown crop")

// Crops lists the crops the dashboard offers advice for.
var Crops = []string{"Onion", "Carrot", "Potato", "Tomato", "Lettuce", "Wheat", "Corn", "Soybean"}

// ValidCrop returns the canonical spelling of name.
func ValidCrop(name string) (string, error) {
	name = strings.TrimSpace(name)
	for _, c := range Crops {
		if strings.EqualFold(c, name) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCrop, name)
}
