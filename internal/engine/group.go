package engine

// Group is the unit of reconciliation: every row sharing one school code,
// in original file order.
type Group struct {
	Code string
	Rows []Row
}

// GroupState tracks a group through the isolation controller.
type GroupState string

const (
	GroupPending    GroupState = "PENDING"
	GroupInProgress GroupState = "IN_PROGRESS"
	GroupCommitted  GroupState = "COMMITTED"
	GroupRolledBack GroupState = "ROLLED_BACK"
)

// GroupBySchool partitions rows by school code. Grouping is stable: groups
// appear in order of first sight and rows keep their relative order, so a
// section row can rely on its class row appearing earlier in the same
// group. Rows without a school code never reach a group; their count is
// returned for the report.
func GroupBySchool(rows []Row) (groups []Group, skipped int) {
	index := make(map[string]int)
	for _, row := range rows {
		code := row.Get("school_code")
		if code == "" {
			skipped++
			continue
		}
		i, ok := index[code]
		if !ok {
			i = len(groups)
			index[code] = i
			groups = append(groups, Group{Code: code})
		}
		groups[i].Rows = append(groups[i].Rows, row)
	}
	return groups, skipped
}
