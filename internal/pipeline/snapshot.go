package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/technosupport/ts-aegis/internal/data"
	"github.com/technosupport/ts-aegis/internal/tamper"
	"github.com/technosupport/ts-aegis/internal/vision"
)

// GlareArchiver saves the offending frame when a glare incident opens
// and records the file path plus highlight percentage for later review
// of the rescue quality. Everything here is best-effort.
type GlareArchiver struct {
	Dir    string
	Images data.GlareImageModel
}

func NewGlareArchiver(dir string, db data.DBTX) *GlareArchiver {
	return &GlareArchiver{Dir: dir, Images: data.GlareImageModel{DB: db}}
}

// Hook returns the GlareSnapshot callback for pipeline Options.
func (g *GlareArchiver) Hook() GlareSnapshot {
	return func(fr *vision.Frame, inc tamper.Incident, brightPct float64) {
		path, err := g.writeJPEG(fr, inc)
		if err != nil {
			log.Printf("pipeline: glare snapshot write failed: %v", err)
			return
		}

		row := &data.GlareImageRow{
			IncidentID:      inc.ID,
			FilePath:        path,
			GlarePercentage: brightPct,
			Timestamp:       inc.LastSeenTime(),
			CreatedAt:       time.Now().UTC(),
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := g.Images.Insert(ctx, row); err != nil {
			log.Printf("pipeline: glare image row insert failed: %v", err)
		}
	}
}

func (g *GlareArchiver) writeJPEG(fr *vision.Frame, inc tamper.Incident) (string, error) {
	if err := os.MkdirAll(g.Dir, 0o750); err != nil {
		return "", err
	}
	path := filepath.Join(g.Dir, fmt.Sprintf("glare_%s.jpg", inc.ID))

	buf, err := vision.EncodeJPEG(fr, 80)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, buf, 0o640); err != nil {
		return "", err
	}
	return path, nil
}
