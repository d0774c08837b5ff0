package collab

import "inkboard/internal/models"

// Accept reports whether incoming replaces the stored element with the
// same id. Unknown ids are accepted, a higher version wins, and on equal
// versions the lower versionNonce wins.
func Accept(stored models.Element, found bool, incoming models.Element) bool {
	if !found {
		return true
	}
	if incoming.Version != stored.Version {
		return incoming.Version > stored.Version
	}
	return incoming.VersionNonce < stored.VersionNonce
}

// sceneState is the authoritative element list of a room. Deleted
// elements stay as tombstones so older versions cannot bring them back.
type sceneState struct {
	elements map[string]models.Element
	order    []string
}

func newSceneState(elements []models.Element) *sceneState {
	s := &sceneState{elements: make(map[string]models.Element, len(elements))}
	s.apply(elements)
	return s
}

// apply reconciles incoming into the state and returns the accepted
// elements, one per id, in first-seen order.
func (s *sceneState) apply(incoming []models.Element) []models.Element {
	acceptedIdx := map[string]int{}
	accepted := []models.Element{}
	for _, el := range incoming {
		stored, found := s.elements[el.ID]
		if !Accept(stored, found, el) {
			continue
		}
		if !found {
			s.order = append(s.order, el.ID)
		}
		s.elements[el.ID] = el
		if i, ok := acceptedIdx[el.ID]; ok {
			accepted[i] = el
			continue
		}
		acceptedIdx[el.ID] = len(accepted)
		accepted = append(accepted, el)
	}
	return accepted
}

// snapshot returns every element, tombstones included, in insertion order.
func (s *sceneState) snapshot() []models.Element {
	out := make([]models.Element, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.elements[id])
	}
	return out
}

// liveCount counts elements that are not deleted.
func (s *sceneState) liveCount() int {
	n := 0
	for _, el := range s.elements {
		if !el.IsDeleted {
			n++
		}
	}
	return n
}
