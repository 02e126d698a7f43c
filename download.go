package lfstore

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ndlib/lfstore/fsys"
)

// how many copies DownloadFiles runs at once
const downloadLimit = 4

// DownloadResult reports how exporting one item went.
type DownloadResult struct {
	ID   string
	Name string // name of the file written
	Err  error  // nil on success
}

// DownloadFile copies the content of a file item into target. A failure is
// logged and reported in the result.
func (s *Store) DownloadFile(ctx context.Context, id string, target fsys.WritableFile) DownloadResult {
	res := DownloadResult{ID: id, Name: target.Name()}
	f, err := s.GetFile(ctx, id)
	if err == nil {
		err = target.Copy(f)
	}
	if err != nil {
		s.log.WithError(err).WithField("id", id).Errorln("downloading file")
		res.Err = err
	}
	return res
}

// DownloadFiles copies each of the file items into the folder target, named
// by their fileName label or, lacking one, the last part of their id. The
// results are in the order of ids. Failed items are logged and skipped; they
// do not stop the others.
func (s *Store) DownloadFiles(ctx context.Context, ids []string, target fsys.WritableFS) []DownloadResult {
	results := make([]DownloadResult, len(ids))
	var g errgroup.Group
	g.SetLimit(downloadLimit)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			results[i] = s.download(ctx, id, target)
			return nil
		})
	}
	g.Wait()
	return results
}

func (s *Store) download(ctx context.Context, id string, target fsys.WritableFS) DownloadResult {
	res := DownloadResult{ID: id}
	f, err := s.GetFile(ctx, id)
	if err == nil {
		var name string
		name, err = f.GetXAttr(FileNameAttr)
		res.Name = exportName(id, name)
	}
	if err == nil {
		err = target.SaveFile(f, res.Name)
	}
	if err != nil {
		s.log.WithError(err).WithField("id", id).Errorln("downloading file")
		res.Err = err
	}
	return res
}
