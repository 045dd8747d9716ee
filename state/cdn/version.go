package cdn

import (
	"strconv"
	"strings"
)

// LatestVersion returns the highest of the given versions, empty when there
// are none.
func LatestVersion(vs []string) string {
	latest := ""
	for _, v := range vs {
		if latest == "" || CompareVersions(v, latest) > 0 {
			latest = v
		}
	}
	return latest
}

// CompareVersions orders dotted versions numerically, segment by segment.
// A pre-release ("1.0.0-wip") sorts before its release. Non-numeric
// segments compare as strings.
func CompareVersions(a, b string) int {
	coreA, preA, _ := strings.Cut(a, "-")
	coreB, preB, _ := strings.Cut(b, "-")

	segA, segB := strings.Split(coreA, "."), strings.Split(coreB, ".")
	for i := 0; i < max(len(segA), len(segB)); i++ {
		if c := compareSegment(segment(segA, i), segment(segB, i)); c != 0 {
			return c
		}
	}

	switch {
	case preA == preB:
		return 0
	case preA == "":
		return 1
	case preB == "":
		return -1
	default:
		return strings.Compare(preA, preB)
	}
}

func segment(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return "0"
}

func compareSegment(a, b string) int {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	switch {
	case na < nb:
		return -1
	case na > nb:
		return 1
	default:
		return 0
	}
}
