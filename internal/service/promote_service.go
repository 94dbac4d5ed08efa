package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gorm.io/datatypes"

	"github.com/makeasinger/motionvault/internal/logger"
	"github.com/makeasinger/motionvault/internal/media"
	"github.com/makeasinger/motionvault/internal/model"
	"github.com/makeasinger/motionvault/internal/state"
)

// PromoteService turns a succeeded generation task into a permanent asset.
type PromoteService struct {
	engine     *state.Engine
	prober     media.Prober
	httpClient *http.Client
	tempDir    string
	log        *logger.Logger
}

func NewPromoteService(engine *state.Engine, prober media.Prober, tempDir string, log *logger.Logger) *PromoteService {
	return &PromoteService{
		engine:     engine,
		prober:     prober,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		tempDir:    tempDir,
		log:        log.With("service", "promote"),
	}
}

// Promote downloads the task's output, measures it, stores it as a new
// object and inserts the asset. The task is then deleted along with its
// inputs. Failures before the asset insert leave the task in place; failures
// while retiring the task are logged only.
func (s *PromoteService) Promote(ctx context.Context, taskID string, req model.PromoteRequest) (model.Asset, error) {
	task, ok := s.engine.Store().Task(taskID)
	if !ok {
		return model.Asset{}, fmt.Errorf("task %s: %w", taskID, model.ErrNotFound)
	}
	if task.Status != model.TaskSucceeded {
		return model.Asset{}, model.Invalid(fmt.Sprintf("task is %s, only SUCCEEDED tasks can be promoted", task.Status))
	}
	if task.OutputVideoURL == nil || *task.OutputVideoURL == "" {
		return model.Asset{}, model.Invalid("task has no output video")
	}
	actor := strings.TrimSpace(req.ActorName)
	if actor == "" {
		return model.Asset{}, model.Invalid("actor name is required")
	}

	localPath, size, err := s.download(ctx, *task.OutputVideoURL)
	if err != nil {
		return model.Asset{}, fmt.Errorf("fetch output: %w", err)
	}
	defer os.Remove(localPath)

	res, err := s.prober.Resolution(ctx, localPath)
	if err != nil {
		return model.Asset{}, fmt.Errorf("probe output: %w", err)
	}

	objects := s.engine.Gateway().Objects
	key := ObjectKey(s.engine.UserID(), fmt.Sprintf("generation_%s.mp4", task.ID))
	if err := uploadLocalFile(ctx, objects, key, localPath, defaultContentType); err != nil {
		return model.Asset{}, fmt.Errorf("upload output: %w", err)
	}

	meta := task.InitialMetadata.Data()
	wanted := append(PerformerCategories(meta.PerformanceActor),
		CategoryRequest{Kind: model.KindMovements, Name: meta.MovementType},
		CategoryRequest{Kind: model.KindActors, Name: actor},
	)
	_, err = s.engine.EnsureCategories(ctx, func(existing []model.Category) []model.Category {
		return ReconcileCategories(existing, wanted)
	})
	if err != nil {
		s.discard(ctx, key)
		return model.Asset{}, fmt.Errorf("create categories: %w", err)
	}

	asset, err := s.engine.AddAsset(ctx, model.Asset{
		FilePath:         key,
		VideoURL:         objects.GetPublicURL(key),
		ActorName:        actor,
		MovementType:     meta.MovementType,
		PerformanceActor: meta.PerformanceActor,
		TakeNumber:       max(meta.TakeNumber, 1),
		Tags:             datatypes.JSONSlice[string](model.NormalizeTags(append(append([]string(nil), meta.Tags...), req.Tags...))),
		Resolution:       datatypes.NewJSONType(res),
		FileSize:         humanize.Bytes(uint64(size)),
	})
	if err != nil {
		s.discard(ctx, key)
		return model.Asset{}, fmt.Errorf("insert asset: %w", err)
	}

	if err := s.engine.DeleteTask(ctx, task.ID); err != nil {
		s.log.Warn("Promoted task could not be retired", "task_id", task.ID, "error", err)
	}

	s.log.Info("Task promoted", "task_id", task.ID, "asset_id", asset.ID)
	return asset, nil
}

func (s *PromoteService) download(ctx context.Context, url string) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	f, err := os.CreateTemp(s.tempDir, "promote-*.mp4")
	if err != nil {
		return "", 0, err
	}
	size, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", 0, err
	}
	return f.Name(), size, nil
}

func (s *PromoteService) discard(ctx context.Context, key string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := s.engine.Gateway().Objects.Remove(cctx, []string{key}); err != nil {
		s.log.Warn("Failed to remove promoted object", "key", key, "error", err)
	}
}
