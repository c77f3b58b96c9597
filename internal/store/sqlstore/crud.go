package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/newffy/nessie/internal/hashid"
	"github.com/newffy/nessie/internal/nesserr"
	"github.com/newffy/nessie/internal/types"
)

func (s *Store) span(ctx context.Context, name string) (context.Context, trace.Span) {
	return sqlTracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "dolt"),
		attribute.String("nessie.repository_id", s.repositoryID),
	))
}

func (s *Store) GetGlobalPointer(ctx context.Context) (*types.GlobalPointer, error) {
	ctx, sp := s.span(ctx, "sqlstore.GetGlobalPointer")
	var err error
	defer func() { endSpan(sp, err) }()

	var payload []byte
	var version string
	row := s.db.QueryRowContext(ctx,
		"SELECT version, payload FROM nessie_global_pointer WHERE repository_id = ?", s.repositoryID)
	if err = row.Scan(&version, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = nil
			return &types.GlobalPointer{}, nil
		}
		return nil, nesserr.Wrap(nesserr.Unavailable, err, "sqlstore: reading global pointer")
	}

	var p types.GlobalPointer
	if err = decodeRow(payload, &p); err != nil {
		return nil, err
	}
	p.Version = version
	return &p, nil
}

func (s *Store) CASGlobalPointer(ctx context.Context, expected, next *types.GlobalPointer) (bool, error) {
	ctx, sp := s.span(ctx, "sqlstore.CASGlobalPointer")
	var err error
	defer func() { endSpan(sp, err) }()

	newVersion := hashid.Of([]byte(next.GlobalID.String() + next.RefLogID.String() + expected.Version)).String()
	clone := next.Clone()
	clone.Version = newVersion

	payload, err := encodeRow(clone)
	if err != nil {
		return false, err
	}

	var res sql.Result
	if expected.Version == "" {
		res, err = s.db.ExecContext(ctx,
			"INSERT IGNORE INTO nessie_global_pointer (repository_id, global_id, ref_log_id, version, payload) VALUES (?, ?, ?, ?, ?)",
			s.repositoryID, clone.GlobalID.Bytes(), clone.RefLogID.Bytes(), newVersion, payload)
	} else {
		res, err = s.db.ExecContext(ctx,
			"UPDATE nessie_global_pointer SET global_id = ?, ref_log_id = ?, version = ?, payload = ? WHERE repository_id = ? AND version = ?",
			clone.GlobalID.Bytes(), clone.RefLogID.Bytes(), newVersion, payload, s.repositoryID, expected.Version)
	}
	if err != nil {
		return false, nesserr.Wrap(nesserr.Unavailable, err, "sqlstore: writing global pointer")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, nesserr.Wrap(nesserr.Unavailable, err, "sqlstore: checking CAS result")
	}
	if n == 0 {
		err = nil
		sqlMetrics.casRetries.Add(ctx, 1)
		return false, nil
	}
	return true, nil
}

func (s *Store) PutCommitLog(ctx context.Context, e *types.CommitEntry) error {
	ctx, sp := s.span(ctx, "sqlstore.PutCommitLog")
	var err error
	defer func() { endSpan(sp, err) }()

	payload, err := encodeRow(e)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO nessie_commit_log (repository_id, hash, payload) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE payload = payload",
		s.repositoryID, e.Hash.Bytes(), payload)
	if err != nil {
		err = nesserr.Wrap(nesserr.Unavailable, err, "sqlstore: writing commit log")
	}
	return err
}

func (s *Store) GetCommitLog(ctx context.Context, h hashid.Hash) (*types.CommitEntry, error) {
	ctx, sp := s.span(ctx, "sqlstore.GetCommitLog")
	var err error
	defer func() { endSpan(sp, err) }()

	var payload []byte
	row := s.db.QueryRowContext(ctx,
		"SELECT payload FROM nessie_commit_log WHERE repository_id = ? AND hash = ?", s.repositoryID, h.Bytes())
	if err = row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = nesserr.New(nesserr.NotFound, "commit %s not found", h)
		} else {
			err = nesserr.Wrap(nesserr.Unavailable, err, "sqlstore: reading commit log")
		}
		return nil, err
	}
	var e types.CommitEntry
	if err = decodeRow(payload, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) BatchGetCommitLog(ctx context.Context, hs []hashid.Hash) (map[hashid.Hash]*types.CommitEntry, error) {
	out := make(map[hashid.Hash]*types.CommitEntry, len(hs))
	for _, h := range hs {
		e, err := s.GetCommitLog(ctx, h)
		if err != nil {
			if nesserr.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out[h] = e
	}
	return out, nil
}

func (s *Store) PutGlobalLog(ctx context.Context, g *types.GlobalLogEntry) error {
	ctx, sp := s.span(ctx, "sqlstore.PutGlobalLog")
	var err error
	defer func() { endSpan(sp, err) }()

	payload, err := encodeRow(g)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO nessie_global_log (repository_id, hash, payload) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE payload = payload",
		s.repositoryID, g.ID.Bytes(), payload)
	if err != nil {
		err = nesserr.Wrap(nesserr.Unavailable, err, "sqlstore: writing global log")
	}
	return err
}

func (s *Store) GetGlobalLog(ctx context.Context, h hashid.Hash) (*types.GlobalLogEntry, error) {
	ctx, sp := s.span(ctx, "sqlstore.GetGlobalLog")
	var err error
	defer func() { endSpan(sp, err) }()

	var payload []byte
	row := s.db.QueryRowContext(ctx,
		"SELECT payload FROM nessie_global_log WHERE repository_id = ? AND hash = ?", s.repositoryID, h.Bytes())
	if err = row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = nesserr.New(nesserr.NotFound, "global log entry %s not found", h)
		} else {
			err = nesserr.Wrap(nesserr.Unavailable, err, "sqlstore: reading global log")
		}
		return nil, err
	}
	var g types.GlobalLogEntry
	if err = decodeRow(payload, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Store) PutRefLog(ctx context.Context, r *types.RefLogEntry) error {
	ctx, sp := s.span(ctx, "sqlstore.PutRefLog")
	var err error
	defer func() { endSpan(sp, err) }()

	payload, err := encodeRow(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO nessie_ref_log (repository_id, hash, payload) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE payload = payload",
		s.repositoryID, r.RefLogID.Bytes(), payload)
	if err != nil {
		err = nesserr.Wrap(nesserr.Unavailable, err, "sqlstore: writing ref log")
	}
	return err
}

func (s *Store) GetRefLog(ctx context.Context, h hashid.Hash) (*types.RefLogEntry, error) {
	ctx, sp := s.span(ctx, "sqlstore.GetRefLog")
	var err error
	defer func() { endSpan(sp, err) }()

	var payload []byte
	row := s.db.QueryRowContext(ctx,
		"SELECT payload FROM nessie_ref_log WHERE repository_id = ? AND hash = ?", s.repositoryID, h.Bytes())
	if err = row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = nesserr.New(nesserr.RefLogNotFound, "ref log entry %s not found", h)
		} else {
			err = nesserr.Wrap(nesserr.Unavailable, err, "sqlstore: reading ref log")
		}
		return nil, err
	}
	var r types.RefLogEntry
	if err = decodeRow(payload, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) ScanRefLog(ctx context.Context, head hashid.Hash, fn func(*types.RefLogEntry) bool) error {
	cur := head
	for !cur.IsNoAncestor() {
		r, err := s.GetRefLog(ctx, cur)
		if err != nil {
			return err
		}
		if !fn(r) {
			return nil
		}
		if len(r.Parents) == 0 {
			return nil
		}
		cur = r.Parents[0]
	}
	return nil
}

func (s *Store) Erase(ctx context.Context, repositoryID string) error {
	ctx, sp := s.span(ctx, "sqlstore.Erase")
	var err error
	defer func() { endSpan(sp, err) }()

	tables := []string{
		"nessie_global_pointer", "nessie_commit_log", "nessie_global_log",
		"nessie_ref_log", "nessie_repo_description",
	}
	for _, table := range tables {
		if _, e := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE repository_id = ?", repositoryID); e != nil {
			err = nesserr.Wrap(nesserr.Unavailable, e, "sqlstore: erasing %s", table)
			return err
		}
	}
	return nil
}

func (s *Store) GetRepoDescription(ctx context.Context, repositoryID string) (*types.RepositoryDescription, error) {
	ctx, sp := s.span(ctx, "sqlstore.GetRepoDescription")
	var err error
	defer func() { endSpan(sp, err) }()

	var payload []byte
	var version string
	row := s.db.QueryRowContext(ctx,
		"SELECT version, payload FROM nessie_repo_description WHERE repository_id = ?", repositoryID)
	if err = row.Scan(&version, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = nil
			return &types.RepositoryDescription{RepoVersion: 1, Properties: map[string]string{}}, nil
		}
		return nil, nesserr.Wrap(nesserr.Unavailable, err, "sqlstore: reading repo description")
	}
	var d types.RepositoryDescription
	if err = decodeRow(payload, &d); err != nil {
		return nil, err
	}
	d.Version = version
	return &d, nil
}

func (s *Store) CASRepoDescription(ctx context.Context, repositoryID string, expected, next *types.RepositoryDescription) (bool, error) {
	ctx, sp := s.span(ctx, "sqlstore.CASRepoDescription")
	var err error
	defer func() { endSpan(sp, err) }()

	newVersion := hashid.Of([]byte(expected.Version + repositoryID)).String()
	clone := next.Clone()
	clone.Version = newVersion

	payload, err := encodeRow(clone)
	if err != nil {
		return false, err
	}

	var res sql.Result
	if expected.Version == "" {
		res, err = s.db.ExecContext(ctx,
			"INSERT INTO nessie_repo_description (repository_id, repo_version, version, payload) VALUES (?, ?, ?, ?) "+
				"ON DUPLICATE KEY UPDATE repo_version = VALUES(repo_version), version = VALUES(version), payload = VALUES(payload)",
			repositoryID, clone.RepoVersion, newVersion, payload)
	} else {
		res, err = s.db.ExecContext(ctx,
			"UPDATE nessie_repo_description SET repo_version = ?, version = ?, payload = ? WHERE repository_id = ? AND version = ?",
			clone.RepoVersion, newVersion, payload, repositoryID, expected.Version)
	}
	if err != nil {
		return false, nesserr.Wrap(nesserr.Unavailable, err, "sqlstore: writing repo description")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, nesserr.Wrap(nesserr.Unavailable, err, "sqlstore: checking CAS result")
	}
	if n == 0 && expected.Version != "" {
		err = nil
		return false, nil
	}
	return true, nil
}
