package domain

// Column is one fixed status bucket of the rendered board.
type Column struct {
	Status TaskStatus
	Tasks  []Task
}

// Board groups a task list snapshot into the five fixed columns. Each
// task lands in exactly one column and keeps its relative order from the
// input; tasks carrying a status outside the enum are dropped rather than
// invented a column for.
func Board(tasks []Task) []Column {
	byStatus := make(map[TaskStatus][]Task, len(Statuses()))
	for _, t := range tasks {
		if _, ok := ParseStatus(string(t.Status)); !ok {
			continue
		}
		byStatus[t.Status] = append(byStatus[t.Status], t)
	}

	columns := make([]Column, 0, len(Statuses()))
	for _, s := range Statuses() {
		columns = append(columns, Column{Status: s, Tasks: byStatus[s]})
	}
	return columns
}
