package workflow

// CountLeaves returns the number of command-running steps in steps,
// recursing into groups. Groups themselves are not counted.
func CountLeaves(steps []Step) int {
	total := 0
	for _, step := range steps {
		if step.IsGroup() {
			total += CountLeaves(step.Parallel)
			continue
		}
		total++
	}
	return total
}
