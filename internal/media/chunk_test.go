package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanChunksSmallFileSingleChunk(t *testing.T) {
	plan := PlanChunks(3 << 20)

	assert.Equal(t, int64(1), plan.ChunkCount)
	assert.Equal(t, int64(3<<20), plan.ChunkSize)
}

func TestPlanChunksAtSingleChunkCeiling(t *testing.T) {
	plan := PlanChunks(MaxSingleChunk)

	assert.Equal(t, int64(1), plan.ChunkCount)
	assert.Equal(t, MaxSingleChunk, plan.ChunkSize)
}

func TestPlanChunksAboveCeilingUsesDefault(t *testing.T) {
	size := MaxSingleChunk + 1
	plan := PlanChunks(size)

	assert.Equal(t, DefaultChunkSize, plan.ChunkSize)
	assert.Equal(t, int64(7), plan.ChunkCount)
}

func TestPlanChunksZeroAndNegative(t *testing.T) {
	assert.Equal(t, int64(0), PlanChunks(0).ChunkCount)
	assert.Equal(t, int64(0), PlanChunks(-1).ChunkCount)
}

func TestPlanChunksBounds(t *testing.T) {
	sizes := []int64{
		1,
		MinChunkSize - 1,
		MinChunkSize,
		MaxSingleChunk,
		MaxSingleChunk + 1,
		500 << 20,
		20 << 30,
		50 << 30,
	}

	for _, size := range sizes {
		plan := PlanChunks(size)

		assert.LessOrEqual(t, plan.ChunkCount, MaxChunkCount, "size %d", size)
		assert.Positive(t, plan.ChunkCount, "size %d", size)

		// chunks must cover the file exactly
		assert.GreaterOrEqual(t, plan.ChunkSize*plan.ChunkCount, size, "size %d", size)
		assert.Less(t, plan.ChunkSize*(plan.ChunkCount-1), size, "size %d", size)

		if plan.ChunkCount > 1 {
			assert.GreaterOrEqual(t, plan.ChunkSize, MinChunkSize, "size %d", size)
			assert.LessOrEqual(t, plan.ChunkSize, MaxSingleChunk, "size %d", size)
		}
	}
}
