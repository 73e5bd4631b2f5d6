package executor

import (
	"errors"
	"strings"

	"github.com/spiderctl/spiderctl/internal/spider"
)

// Column headers of the per-pool status table, in order. Slicing is done
// by header offsets because values contain spaces.
var unitColumns = []string{"ID", "NAME", "IMAGE", "NODE", "DESIRED STATE", "CURRENT STATE", "ERROR"}

func tableLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// parseUnitTable slices a fixed-width status table into unit records.
// The unit index is the numeric suffix of the NAME column.
func parseUnitTable(out string) ([]spider.UnitInfo, error) {
	lines := tableLines(out)
	if len(lines) == 0 {
		return nil, nil
	}
	header := lines[0]
	offsets := make([]int, 0, len(unitColumns)+1)
	for _, col := range unitColumns {
		idx := strings.Index(header, col)
		if idx < 0 {
			return nil, errors.New("unrecognized status table header: missing " + col)
		}
		offsets = append(offsets, idx)
	}

	var units []spider.UnitInfo
	for _, line := range lines[1:] {
		cell := func(i int) string {
			start := offsets[i]
			if start >= len(line) {
				return ""
			}
			end := len(line)
			if i+1 < len(offsets) && offsets[i+1] < end {
				end = offsets[i+1]
			}
			return strings.TrimSpace(line[start:end])
		}
		unit := spider.UnitInfo{
			ReplicaID:    cell(0),
			Name:         cell(1),
			Image:        cell(2),
			Node:         cell(3),
			DesiredState: cell(4),
			CurrentState: cell(5),
			Error:        cell(6),
		}
		if dot := strings.LastIndex(unit.Name, "."); dot >= 0 {
			unit.Index = unit.Name[dot+1:]
		}
		units = append(units, unit)
	}
	return units, nil
}
