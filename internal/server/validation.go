package server

import (
	"regexp"
)

var boardIDRegex = regexp.MustCompile(`^bd-[0-9a-z]{8}$`)

func validateBoardID(id string) bool {
	return boardIDRegex.MatchString(id)
}
