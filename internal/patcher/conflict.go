package patcher

import "github.com/sokinpui/patchstudio/model"

const (
	markerCurrent = "<<<<<<< current"
	markerBase    = "||||||| base"
	markerSep     = "======="
	markerPatch   = ">>>>>>> patch"
)

// conflictBlock renders the lines that replace an unmatched window.
func conflictBlock(mode model.ConflictMarkerMode, current []string, h *model.Hunk) []string {
	base, patch := h.OldSide(), h.NewSide()
	out := make([]string, 0, len(current)+len(base)+len(patch)+4)
	out = append(out, markerCurrent)
	out = append(out, current...)
	if mode != model.ConflictMerge {
		out = append(out, markerBase)
		out = append(out, base...)
	}
	out = append(out, markerSep)
	out = append(out, patch...)
	out = append(out, markerPatch)
	return out
}
