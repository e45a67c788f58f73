package docker

import "fmt"

// Label keys used for Drey resources
const (
	LabelProject   = "drey.project"
	LabelRoomID    = "drey.room.id"
	LabelComponent = "drey.component"
)

// BuildLabels creates the standard label set for a room's compute resources.
// component is optional (resource-specific).
func BuildLabels(roomID, component string) map[string]string {
	labels := map[string]string{
		LabelProject: "true",
		LabelRoomID:  roomID,
	}

	if component != "" {
		labels[LabelComponent] = component
	}

	return labels
}

// Resource naming conventions for Drey components

// NetworkName returns the Docker network name for a room
func NetworkName(roomID string) string {
	return fmt.Sprintf("drey-network-%s", roomID)
}

// ComputeContainerName returns the compute container name for a room and service
func ComputeContainerName(roomID, service string) string {
	return fmt.Sprintf("drey-compute-%s-%s", roomID, service)
}
