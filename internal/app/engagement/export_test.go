package engagement

// SetSeedFunc replaces the seed source used for every collectible roll.
func SetSeedFunc(e *Engine, f func() (int64, error)) { e.rewards.newSeed = f }
