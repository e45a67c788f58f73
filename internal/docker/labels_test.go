package docker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildLabels(t *testing.T) {
	labels := BuildLabels("design-review", "compute")

	assert.Equal(t, "true", labels[LabelProject])
	assert.Equal(t, "design-review", labels[LabelRoomID])
	assert.Equal(t, "compute", labels[LabelComponent])
	assert.Len(t, labels, 3)
}

func TestBuildLabels_NoComponent(t *testing.T) {
	labels := BuildLabels("design-review", "")

	assert.Equal(t, "true", labels[LabelProject])
	assert.Equal(t, "design-review", labels[LabelRoomID])
	assert.NotContains(t, labels, LabelComponent)
	assert.Len(t, labels, 2)
}

func TestResourceNaming(t *testing.T) {
	assert.Equal(t, "drey-network-design-review", NetworkName("design-review"))
	assert.Equal(t, "drey-compute-design-review-renderer", ComputeContainerName("design-review", "renderer"))
}
