package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"inkboard/internal/api"
	"inkboard/internal/format"
	"inkboard/internal/models"
)

var outputFormatter format.Formatter = format.JSONFormatter{}

func writeJSON(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeBoardList(boards []models.BoardSummary) error {
	if len(boards) == 0 {
		return writePlain("no boards\n")
	}
	for _, board := range boards {
		if err := writePlain("%s\n", formatBoardLine(board)); err != nil {
			return err
		}
	}
	return nil
}

func writeBoardDetail(board models.Board) error {
	lines := []string{
		fmt.Sprintf("id: %s", board.ID),
		fmt.Sprintf("title: %s", board.Title),
		fmt.Sprintf("owner_id: %s", board.OwnerID),
		fmt.Sprintf("version: %d", board.Version),
		fmt.Sprintf("elements: %d", liveElements(board.Scene)),
		fmt.Sprintf("created_at: %s", formatTime(board.CreatedAt)),
		fmt.Sprintf("updated_at: %s", formatTime(board.UpdatedAt)),
	}
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func writeUserLine(user *api.UserResponse) error {
	status := "enabled"
	if user.Disabled {
		status = "disabled"
	}
	return writePlain("%s\t%s\t%s\t%s\n", user.Username, user.Role, status, user.ID)
}

func formatBoardLine(board models.BoardSummary) string {
	return fmt.Sprintf("%s  v%-4d %s  %s", board.ID, board.Version, formatTime(board.UpdatedAt), board.Title)
}

func liveElements(scene models.Scene) int {
	count := 0
	for _, el := range scene.Elements {
		if !el.IsDeleted {
			count++
		}
	}
	return count
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
