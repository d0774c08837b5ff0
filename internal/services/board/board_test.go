package board

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkboard/internal/blobstore"
	"inkboard/internal/models"
	"inkboard/internal/rpc"
	"inkboard/internal/store"
)

type fixture struct {
	svc   *Service
	st    *store.Store
	blobs *blobstore.LocalCAS
	ada   *models.User
	bob   *models.User
	admin *models.User
}

type recordingListener struct {
	mu       sync.Mutex
	replaced []string
	deleted  []string
}

func (l *recordingListener) SceneReplaced(boardID string, _ models.Scene, _ int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.replaced = append(l.replaced, boardID)
}

func (l *recordingListener) BoardDeleted(boardID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deleted = append(l.deleted, boardID)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "board.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	blobs, err := blobstore.NewLocalCAS(filepath.Join(dir, "blobs"))
	require.NoError(t, err)

	svc, err := New(Options{Store: st, Blobs: blobs, MaxUploadBytes: 1024})
	require.NoError(t, err)

	f := &fixture{svc: svc, st: st, blobs: blobs}
	f.ada = f.user(t, "ada", models.RoleMember)
	f.bob = f.user(t, "bob", models.RoleMember)
	f.admin = f.user(t, "root", models.RoleAdmin)
	return f
}

func (f *fixture) user(t *testing.T, username string, role models.UserRole) *models.User {
	t.Helper()
	user, err := f.st.CreateUser(context.Background(), store.NewUser{Username: username, PasswordHash: "hash", Role: role}, time.Now().UTC())
	require.NoError(t, err)
	return user
}

func element(t *testing.T, id string, version int64) models.Element {
	t.Helper()
	var el models.Element
	raw := `{"id":"` + id + `","version":` + jsonInt(version) + `,"versionNonce":1,"type":"ellipse"}`
	require.NoError(t, json.Unmarshal([]byte(raw), &el))
	return el
}

func jsonInt(v int64) string {
	data, _ := json.Marshal(v)
	return string(data)
}

func TestCreateNormalizesTitle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// "e" + combining acute accent composes to a single rune under NFC.
	board, err := f.svc.Create(ctx, f.ada, "  Cafe\u0301 plan  ")
	require.NoError(t, err)
	assert.Equal(t, "Caf\u00e9 plan", board.Title)
	assert.True(t, strings.HasPrefix(board.ID, "bd-"))
	assert.Equal(t, int64(1), board.Version)

	untitled, err := f.svc.Create(ctx, f.ada, "")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultBoardTitle, untitled.Title)

	_, err = f.svc.Create(ctx, f.ada, strings.Repeat("x", models.BoardTitleMaxRunes+1))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Create(ctx, nil, "anon")
	assert.ErrorIs(t, err, rpc.ErrLoginRequired)
}

func TestOwnerScoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	adaBoard, err := f.svc.Create(ctx, f.ada, "Ada's")
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.bob, "Bob's")
	require.NoError(t, err)

	adaList, err := f.svc.List(ctx, f.ada)
	require.NoError(t, err)
	require.Len(t, adaList, 1)
	assert.Equal(t, adaBoard.ID, adaList[0].ID)

	adminList, err := f.svc.List(ctx, f.admin)
	require.NoError(t, err)
	assert.Len(t, adminList, 2)

	_, err = f.svc.Get(ctx, f.bob, adaBoard.ID)
	assert.ErrorIs(t, err, ErrBoardNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, f.bob, adaBoard.ID), ErrBoardNotFound)

	got, err := f.svc.Get(ctx, f.admin, adaBoard.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada's", got.Title)

	renamed, err := f.svc.Rename(ctx, f.ada, adaBoard.ID, "Renamed")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", renamed.Title)
	_, err = f.svc.Rename(ctx, f.ada, adaBoard.ID, "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSaveSceneOptimisticVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	listener := &recordingListener{}
	f.svc.SetListener(listener)

	board, err := f.svc.Create(ctx, f.ada, "Scene")
	require.NoError(t, err)

	scene := models.Scene{Elements: []models.Element{element(t, "el-1", 1)}}
	version, err := f.svc.SaveScene(ctx, f.ada, board.ID, scene, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	current, err := f.svc.SaveScene(ctx, f.ada, board.ID, scene, 1)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, int64(2), current)

	version, err = f.svc.SaveScene(ctx, f.ada, board.ID, scene, store.AnyVersion)
	require.NoError(t, err)
	assert.Equal(t, int64(3), version)

	assert.Equal(t, []string{board.ID, board.ID}, listener.replaced)

	persisted, saved, err := f.svc.PersistScene(ctx, board.ID, models.EmptyScene(), 3)
	require.NoError(t, err)
	assert.True(t, saved)
	assert.Equal(t, int64(4), persisted)
	assert.Len(t, listener.replaced, 2)

	current, saved, err = f.svc.PersistScene(ctx, board.ID, scene, 3)
	require.NoError(t, err)
	assert.False(t, saved, "a stale room write must not land")
	assert.Equal(t, int64(4), current)

	loaded, loadedVersion, err := f.svc.LoadScene(ctx, board.ID)
	require.NoError(t, err)
	assert.Empty(t, loaded.Elements)
	assert.Equal(t, int64(4), loadedVersion)
}

func TestFilesUploadAndDownload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	board, err := f.svc.Create(ctx, f.ada, "Files")
	require.NoError(t, err)

	file, err := f.svc.PutFile(ctx, f.ada, board.ID, "img_1", "image/png; charset=binary", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "image/png", file.MimeType)
	assert.Equal(t, int64(9), file.SizeBytes)

	again, err := f.svc.PutFile(ctx, f.ada, board.ID, "img_1", "image/png", strings.NewReader("other"))
	require.NoError(t, err)
	assert.Equal(t, file.SHA256, again.SHA256)

	meta, rc, err := f.svc.OpenFile(ctx, f.ada, board.ID, "img_1")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, "image/png", meta.MimeType)

	_, _, err = f.svc.OpenFile(ctx, f.ada, board.ID, "missing")
	assert.ErrorIs(t, err, ErrFileNotFound)
	_, _, err = f.svc.OpenFile(ctx, f.bob, board.ID, "img_1")
	assert.ErrorIs(t, err, ErrBoardNotFound)

	_, err = f.svc.PutFile(ctx, f.ada, board.ID, "doc", "application/pdf", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnsupportedMedia)
	_, err = f.svc.PutFile(ctx, f.ada, board.ID, "../x", "image/png", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.PutFile(ctx, f.ada, board.ID, "big", "image/png", bytes.NewReader(make([]byte, 2048)))
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestDeleteRemovesOrphanBlobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	listener := &recordingListener{}
	f.svc.SetListener(listener)

	first, err := f.svc.Create(ctx, f.ada, "First")
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, f.ada, "Second")
	require.NoError(t, err)

	shared, err := f.svc.PutFile(ctx, f.ada, first.ID, "a", "image/png", strings.NewReader("shared"))
	require.NoError(t, err)
	_, err = f.svc.PutFile(ctx, f.ada, second.ID, "b", "image/png", strings.NewReader("shared"))
	require.NoError(t, err)
	only, err := f.svc.PutFile(ctx, f.ada, first.ID, "c", "image/gif", strings.NewReader("only-first"))
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, f.ada, first.ID))
	assert.Equal(t, []string{first.ID}, listener.deleted)

	exists, err := f.blobs.Exists(ctx, shared.BlobKey)
	require.NoError(t, err)
	assert.True(t, exists, "blob still used by the second board")

	exists, err = f.blobs.Exists(ctx, only.BlobKey)
	require.NoError(t, err)
	assert.False(t, exists, "orphan blob should be removed")
}

func TestCollectBlobsAfterOwnerCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	adaBoard, err := f.svc.Create(ctx, f.ada, "Ada")
	require.NoError(t, err)
	bobBoard, err := f.svc.Create(ctx, f.bob, "Bob")
	require.NoError(t, err)

	shared, err := f.svc.PutFile(ctx, f.ada, adaBoard.ID, "a", "image/png", strings.NewReader("shared"))
	require.NoError(t, err)
	_, err = f.svc.PutFile(ctx, f.bob, bobBoard.ID, "b", "image/png", strings.NewReader("shared"))
	require.NoError(t, err)
	orphan, err := f.svc.PutFile(ctx, f.bob, bobBoard.ID, "c", "image/png", strings.NewReader("bob-only"))
	require.NoError(t, err)

	result, err := f.svc.CollectBlobs(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 0, result.CandidateCount)

	deleted, err := f.st.DeleteUser(ctx, "bob")
	require.NoError(t, err)
	require.True(t, deleted)

	result, err = f.svc.CollectBlobs(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, BlobGCResult{CandidateCount: 1, ReclaimedBytes: int64(len("bob-only")), DryRun: true}, result)
	exists, err := f.blobs.Exists(ctx, orphan.BlobKey)
	require.NoError(t, err)
	assert.True(t, exists, "dry run keeps blobs")

	result, err = f.svc.CollectBlobs(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, BlobGCResult{CandidateCount: 1, DeletedCount: 1, ReclaimedBytes: int64(len("bob-only"))}, result)

	exists, err = f.blobs.Exists(ctx, orphan.BlobKey)
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = f.blobs.Exists(ctx, shared.BlobKey)
	require.NoError(t, err)
	assert.True(t, exists, "blob still used by ada's board")

	_, rc, err := f.svc.OpenFile(ctx, f.ada, adaBoard.ID, "a")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "shared", string(data))
}

func TestCollectBlobsWithoutBlobStore(t *testing.T) {
	f := newFixture(t)
	svc, err := New(Options{Store: f.st})
	require.NoError(t, err)
	_, err = svc.CollectBlobs(context.Background(), true)
	assert.ErrorIs(t, err, ErrFilesUnavailable)
}

func TestExportImportRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	board, err := f.svc.Create(ctx, f.ada, "Export me")
	require.NoError(t, err)
	scene := models.Scene{
		Elements: []models.Element{element(t, "el-1", 4), element(t, "el-2", 1)},
		AppState: map[string]any{"gridSize": float64(20)},
	}
	_, err = f.svc.SaveScene(ctx, f.ada, board.ID, scene, store.AnyVersion)
	require.NoError(t, err)
	_, err = f.svc.PutFile(ctx, f.ada, board.ID, "img", "image/webp", strings.NewReader("webp"))
	require.NoError(t, err)

	doc, err := f.svc.Export(ctx, f.ada, board.ID)
	require.NoError(t, err)
	require.Len(t, doc.Files, 1)

	imported, err := f.svc.Import(ctx, f.bob, doc)
	require.NoError(t, err)
	assert.NotEqual(t, board.ID, imported.ID)
	assert.Equal(t, f.bob.ID, imported.OwnerID)
	assert.Equal(t, "Export me", imported.Title)

	loaded, err := f.svc.Get(ctx, f.bob, imported.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Scene.Elements, 2)
	assert.Equal(t, int64(4), loaded.Scene.Elements[0].Version)

	_, rc, err := f.svc.OpenFile(ctx, f.bob, imported.ID, "img")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "webp", string(data))
}

func TestBoardMethods(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	methods := f.svc.Methods()

	created, err := methods["create"](ctx, rpc.Call{User: f.ada, Params: json.RawMessage(`{"title":"Via RPC"}`)})
	require.NoError(t, err)
	board := created.(*models.Board)

	got, err := methods["get"](ctx, rpc.Call{User: f.ada, Params: json.RawMessage(`{"id":"` + board.ID + `"}`)})
	require.NoError(t, err)
	assert.Equal(t, "Via RPC", got.(*models.Board).Title)

	saved, err := methods["saveScene"](ctx, rpc.Call{User: f.ada, Params: json.RawMessage(`{"id":"` + board.ID + `","scene":{"elements":[{"id":"x","version":1,"versionNonce":2}]},"expected_version":1}`)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.(SaveSceneResult).Version)

	_, err = methods["get"](ctx, rpc.Call{User: f.ada})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = methods["list"](ctx, rpc.Call{})
	assert.ErrorIs(t, err, rpc.ErrLoginRequired)
}
