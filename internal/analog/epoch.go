package analog

// Epoch tags the behavioral state a frame can belong to. Compound tags are
// the intersection of their parts.
type Epoch string

const (
	EpochAll        Epoch = "all"
	EpochRun        Epoch = "run"
	EpochStand      Epoch = "stand"
	EpochStim       Epoch = "stim"
	EpochJuxta      Epoch = "juxta"
	EpochSpont      Epoch = "spont"
	EpochRunStim    Epoch = "run_stim"
	EpochRunJuxta   Epoch = "run_juxta"
	EpochRunSpont   Epoch = "run_spont"
	EpochStandStim  Epoch = "stand_stim"
	EpochStandJuxta Epoch = "stand_juxta"
	EpochStandSpont Epoch = "stand_spont"
)

// EpochOrder fixes the order the behavioral tags appear in fused records
// and on disk.
func EpochOrder() []Epoch {
	return []Epoch{
		EpochAll,
		EpochRun,
		EpochStand,
		EpochStim,
		EpochJuxta,
		EpochSpont,
		EpochRunStim,
		EpochRunJuxta,
		EpochRunSpont,
		EpochStandStim,
		EpochStandJuxta,
		EpochStandSpont,
	}
}
