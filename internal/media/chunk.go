package media

// Chunked-upload bounds. Files at or under MaxSingleChunk upload whole;
// larger files start from DefaultChunkSize and grow it (clamped) until the
// chunk count fits under MaxChunkCount.
const (
	MinChunkSize     int64 = 5 << 20
	MaxSingleChunk   int64 = 64 << 20
	DefaultChunkSize int64 = 10 << 20
	MaxChunkCount    int64 = 1000
)

type ChunkPlan struct {
	ChunkSize  int64
	ChunkCount int64
}

// PlanChunks picks the effective chunk size and count for a file of the
// given size.
func PlanChunks(size int64) ChunkPlan {
	if size <= 0 {
		return ChunkPlan{ChunkSize: 0, ChunkCount: 0}
	}
	if size < MinChunkSize || size <= MaxSingleChunk {
		return ChunkPlan{ChunkSize: size, ChunkCount: 1}
	}

	chunkSize := DefaultChunkSize
	if count := ceilDiv(size, chunkSize); count > MaxChunkCount {
		chunkSize = ceilDiv(size, MaxChunkCount)
		if chunkSize < MinChunkSize {
			chunkSize = MinChunkSize
		}
		if chunkSize > MaxSingleChunk {
			chunkSize = MaxSingleChunk
		}
	}

	return ChunkPlan{ChunkSize: chunkSize, ChunkCount: ceilDiv(size, chunkSize)}
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}
