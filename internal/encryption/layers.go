package encryption

import (
	"profilevault/internal/keys"
	id "profilevault/pkg/domain"
)

// Layer names one encryption pass. Layers are applied in slice order and must
// be peeled in the exact reverse order; the envelope records what was applied.
type Layer string

const (
	LayerBase         Layer = "base"
	LayerConfidential Layer = "confidential"
	LayerSecret       Layer = "secret"
	LayerTopSecret    Layer = "top_secret"
)

var layerPurposes = map[Layer]keys.Purpose{
	LayerBase:         keys.PurposeLayerBase,
	LayerConfidential: keys.PurposeLayerConfidential,
	LayerSecret:       keys.PurposeLayerSecret,
	LayerTopSecret:    keys.PurposeLayerTopSecret,
}

// LayersFor maps a sensitivity tier to its ordered layer list. The base layer
// always applies; each tier at or above CONFIDENTIAL adds one more.
func LayersFor(sensitivity id.Sensitivity) []Layer {
	layers := []Layer{LayerBase}
	if sensitivity.AtLeast(id.SensitivityConfidential) {
		layers = append(layers, LayerConfidential)
	}
	if sensitivity.AtLeast(id.SensitivitySecret) {
		layers = append(layers, LayerSecret)
	}
	if sensitivity.AtLeast(id.SensitivityTopSecret) {
		layers = append(layers, LayerTopSecret)
	}
	return layers
}
