package main

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	semjoin "github.com/kneelinghorse/semantic-ds-toolkit-sub001"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "semjoin dev")
}

func TestJoinCSV(t *testing.T) {
	dir := t.TempDir()
	left := writeFile(t, dir, "customers.csv", "email,name\nA@X.com,Ann\nb@x.com,Bob\nc@x.com,Cy\n")
	right := writeFile(t, dir, "orders.csv", "mail,total\na@x.com,10\nb@x.com,20\n")
	outPath := filepath.Join(dir, "out.csv")

	out, err := run(t, "join", left, right, "--left-on", "email", "--right-on", "mail", "--threshold", "0.3", "--out", outPath)
	require.NoError(t, err)
	assert.Contains(t, out, "2 matched rows")
	assert.Contains(t, out, "email ~ mail: email")

	df, err := semjoin.ReadCSV(outPath)
	require.NoError(t, err)
	assert.Equal(t, 2, df.Height())
	assert.NotNil(t, df.ColumnByName(semjoin.ConfidenceColumn))
}

func TestJoinLeftKeepsUnmatched(t *testing.T) {
	dir := t.TempDir()
	left := writeFile(t, dir, "l.csv", "id\n1\n2\n3\n")
	right := writeFile(t, dir, "r.csv", "id\n2\n")
	outPath := filepath.Join(dir, "out.json")

	_, err := run(t, "join", left, right, "--left-on", "id", "--how", "left", "--out", outPath)
	require.NoError(t, err)

	df, err := semjoin.ReadJSON(outPath)
	require.NoError(t, err)
	assert.Equal(t, 3, df.Height())
}

func TestJoinSQLite(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "crm.db")
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE people (email TEXT, name TEXT);
		INSERT INTO people VALUES ('A@X.com', 'Ann'), ('b@x.com', 'Bob');`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	right := writeFile(t, dir, "orders.csv", "email,total\na@x.com,10\n")
	out, err := run(t, "join", "sqlite:"+dbPath, right,
		"--left-on", "email", "--threshold", "0.3", "--left-query", "SELECT email, name FROM people")
	require.NoError(t, err)
	assert.Contains(t, out, "1 matched rows")
}

func TestJoinSQLRequiresQuery(t *testing.T) {
	dir := t.TempDir()
	right := writeFile(t, dir, "r.csv", "id\n1\n")
	_, err := run(t, "join", "sqlite:"+filepath.Join(dir, "x.db"), right, "--left-on", "id")
	assert.ErrorContains(t, err, "query is required")
}

func TestJoinUnknownColumn(t *testing.T) {
	dir := t.TempDir()
	left := writeFile(t, dir, "l.csv", "id\n1\n")
	right := writeFile(t, dir, "r.csv", "id\n1\n")
	_, err := run(t, "join", left, right, "--left-on", "idd")
	require.Error(t, err)
	assert.ErrorIs(t, err, semjoin.ErrColumnNotFound)
}

func TestJoinBadHow(t *testing.T) {
	dir := t.TempDir()
	left := writeFile(t, dir, "l.csv", "id\n1\n")
	_, err := run(t, "join", left, left, "--left-on", "id", "--how", "sideways")
	assert.Error(t, err)
}

func TestPlan(t *testing.T) {
	dir := t.TempDir()
	left := writeFile(t, dir, "l.csv", "email\na@x.com\n")
	right := writeFile(t, dir, "r.csv", "email\na@x.com\n")

	out, err := run(t, "plan", left, right, "--left-on", "email")
	require.NoError(t, err)
	assert.Contains(t, out, "strategy:      nested_loop")
	assert.Contains(t, out, "normalizer:    email ~ email: email")

	out, err = run(t, "plan", left, right, "--left-on", "email", "--dump")
	require.NoError(t, err)
	assert.Contains(t, out, "Strategy")
}

func TestUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	left := writeFile(t, dir, "l.txt", "id\n1\n")
	_, err := run(t, "join", left, left, "--left-on", "id")
	assert.ErrorContains(t, err, "unsupported input format")
}
