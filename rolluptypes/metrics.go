// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package rolluptypes

const (
	L2ToL1LogSerializeSize   = 88
	InitialStorageWriteSize  = 64
	RepeatedStorageWriteSize = 40
)

// ExecutionMetrics are the resource counters produced by executing a transaction or a block tip.
type ExecutionMetrics struct {
	GasUsed                uint64
	PublishedBytecodeBytes int
	L2L1LongMessages       int
	L2L1Logs               int
	ContractsUsed          int
	ContractsDeployed      int
	VmEvents               int
	StorageLogs            int
	TotalLogQueries        int
	CycleStats             int
	ComputationalGasUsed   uint64
}

func (m ExecutionMetrics) Add(other ExecutionMetrics) ExecutionMetrics {
	return ExecutionMetrics{
		GasUsed:                m.GasUsed + other.GasUsed,
		PublishedBytecodeBytes: m.PublishedBytecodeBytes + other.PublishedBytecodeBytes,
		L2L1LongMessages:       m.L2L1LongMessages + other.L2L1LongMessages,
		L2L1Logs:               m.L2L1Logs + other.L2L1Logs,
		ContractsUsed:          m.ContractsUsed + other.ContractsUsed,
		ContractsDeployed:      m.ContractsDeployed + other.ContractsDeployed,
		VmEvents:               m.VmEvents + other.VmEvents,
		StorageLogs:            m.StorageLogs + other.StorageLogs,
		TotalLogQueries:        m.TotalLogQueries + other.TotalLogQueries,
		CycleStats:             m.CycleStats + other.CycleStats,
		ComputationalGasUsed:   m.ComputationalGasUsed + other.ComputationalGasUsed,
	}
}

// Size is the number of bytes these metrics contribute to the data published on L1.
func (m ExecutionMetrics) Size() int {
	return m.L2L1LongMessages + m.PublishedBytecodeBytes + m.L2L1Logs*L2ToL1LogSerializeSize
}

// DeduplicatedWritesMetrics counts the storage writes of a batch after deduplication.
type DeduplicatedWritesMetrics struct {
	InitialStorageWrites  int
	RepeatedStorageWrites int
}

func (m DeduplicatedWritesMetrics) Add(other DeduplicatedWritesMetrics) DeduplicatedWritesMetrics {
	return DeduplicatedWritesMetrics{
		InitialStorageWrites:  m.InitialStorageWrites + other.InitialStorageWrites,
		RepeatedStorageWrites: m.RepeatedStorageWrites + other.RepeatedStorageWrites,
	}
}

func (m DeduplicatedWritesMetrics) Size() int {
	return m.InitialStorageWrites*InitialStorageWriteSize + m.RepeatedStorageWrites*RepeatedStorageWriteSize
}

// BlockGasCount is the estimated L1 gas needed to commit, prove and execute a batch.
type BlockGasCount struct {
	Commit  uint64
	Prove   uint64
	Execute uint64
}

func (c BlockGasCount) Add(other BlockGasCount) BlockGasCount {
	return BlockGasCount{
		Commit:  c.Commit + other.Commit,
		Prove:   c.Prove + other.Prove,
		Execute: c.Execute + other.Execute,
	}
}

func (c BlockGasCount) AnyFieldGreaterThan(bound uint64) bool {
	return c.Commit > bound || c.Prove > bound || c.Execute > bound
}

// ExecutionMetricsForCriteria pairs the L1 gas estimate with the execution metrics it was derived from.
type ExecutionMetricsForCriteria struct {
	L1Gas            BlockGasCount
	ExecutionMetrics ExecutionMetrics
}

func (m ExecutionMetricsForCriteria) Add(other ExecutionMetricsForCriteria) ExecutionMetricsForCriteria {
	return ExecutionMetricsForCriteria{
		L1Gas:            m.L1Gas.Add(other.L1Gas),
		ExecutionMetrics: m.ExecutionMetrics.Add(other.ExecutionMetrics),
	}
}
