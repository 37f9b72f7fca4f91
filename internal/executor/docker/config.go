package docker

// Config holds the configuration for the Docker backend.
type Config struct {
	// Image is the Docker image to use for execution. It must provide python3.
	Image string
	// MemoryLimit is the hard memory cap of each container (in bytes).
	MemoryLimit int64
	// CPULimit is the number of CPUs the container can use.
	CPULimit float64
	// PoolSize is the number of pre-warmed containers to maintain.
	PoolSize int
	// PidsLimit caps the number of processes inside a container.
	PidsLimit int64
}

// DefaultConfig provides sensible defaults for a Python sandbox.
func DefaultConfig() Config {
	return Config{
		// Use a lightweight python image
		Image: "python:3.12-alpine",
		// 128 MB memory limit
		MemoryLimit: 128 * 1024 * 1024,
		// 0.5 CPU shares
		CPULimit:  0.5,
		PoolSize:  3,
		PidsLimit: 16,
	}
}
