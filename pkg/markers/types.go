package markers

import "time"

// Record is one durable marker: proof that the stage identified by Key
// previously ran to completion successfully.
type Record struct {
	// Key is the stage idempotency key, e.g. "ct/901/passthrough".
	Key string `json:"key"`

	// Owner identifies who recorded the marker, e.g. "root@pve1:<run-id>".
	Owner string `json:"owner"`

	// CreatedAt is when the marker was recorded.
	CreatedAt time.Time `json:"created_at"`
}

// HostKey builds the marker key for a host-scope stage.
func HostKey(stageID string) string {
	return "host/" + stageID
}

// ContainerKey builds the marker key for a container-scope stage.
func ContainerKey(containerID, stageID string) string {
	return "ct/" + containerID + "/" + stageID
}

// ContainerPrefix is the key prefix covering every marker of one container.
// Rollback revokes by this prefix so a future run starts from the create stage.
func ContainerPrefix(containerID string) string {
	return "ct/" + containerID + "/"
}
