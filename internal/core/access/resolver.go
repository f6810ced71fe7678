package access

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

const defaultMaxDepth = 32

// Resolver はアクターのロールと所属会社から Scope を計算します。
type Resolver struct {
	dir      Directory
	cache    DownlineCache
	maxDepth int
	logger   *zap.Logger
}

// Option は Resolver の任意設定です。
type Option func(*Resolver)

// WithCache は部下集合のキャッシュを設定します。nil は無視します。
func WithCache(cache DownlineCache) Option {
	return func(r *Resolver) {
		if cache != nil {
			r.cache = cache
		}
	}
}

// WithMaxDepth は階層探索の最大深さを設定します。
func WithMaxDepth(depth int) Option {
	return func(r *Resolver) {
		if depth > 0 {
			r.maxDepth = depth
		}
	}
}

// WithLogger はロガーを設定します。
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver は Resolver を生成します。
func NewResolver(dir Directory, opts ...Option) *Resolver {
	r := &Resolver{dir: dir, maxDepth: defaultMaxDepth, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve はアクターの可視範囲を返します。
// プロファイルの無いアクターは、全社ロールでない限り空の範囲になります。
func (r *Resolver) Resolve(ctx context.Context, actor Actor) (Scope, error) {
	tier := actor.Role.Tier()

	switch tier {
	case TierGlobal:
		scope := Scope{Tier: TierGlobal, CompanyID: actor.CompanyID}
		return r.withOwnProfile(ctx, actor, scope)
	case TierCompany:
		if actor.CompanyID == "" {
			return Scope{Tier: TierNone}, nil
		}
		scope := Scope{Tier: TierCompany, CompanyID: actor.CompanyID}
		return r.withOwnProfile(ctx, actor, scope)
	case TierSelf, TierDownline:
	default:
		return Scope{Tier: TierNone, CompanyID: actor.CompanyID}, nil
	}

	profile, err := r.dir.FindProfileByUserID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return Scope{Tier: TierNone, CompanyID: actor.CompanyID}, nil
		}
		return Scope{}, err
	}
	if actor.CompanyID != "" && profile.CompanyID != actor.CompanyID {
		return Scope{Tier: TierNone, CompanyID: actor.CompanyID}, nil
	}

	scope := Scope{
		Tier:      tier,
		CompanyID: profile.CompanyID,
		ProfileID: profile.ID,
		members:   map[string]struct{}{profile.ID: {}},
	}
	if tier == TierSelf {
		return scope, nil
	}

	downline, err := r.downline(ctx, profile.CompanyID, profile.ID)
	if err != nil {
		return Scope{}, err
	}
	for _, id := range downline {
		scope.members[id] = struct{}{}
	}
	return scope, nil
}

func (r *Resolver) withOwnProfile(ctx context.Context, actor Actor, scope Scope) (Scope, error) {
	profile, err := r.dir.FindProfileByUserID(ctx, actor.ID)
	switch {
	case err == nil:
		scope.ProfileID = profile.ID
	case errors.Is(err, ErrProfileNotFound):
	default:
		return Scope{}, err
	}
	return scope, nil
}

// Downline は rootID から上長関係を辿った部下プロファイル ID を返します（root 自身は含みません）。
func (r *Resolver) Downline(ctx context.Context, companyID, rootID string) ([]string, error) {
	return r.downline(ctx, companyID, rootID)
}

func (r *Resolver) downline(ctx context.Context, companyID, rootID string) ([]string, error) {
	if r.cache != nil {
		ids, ok, err := r.cache.GetDownline(ctx, companyID, rootID)
		if err != nil {
			r.logger.Warn("downline cache read failed", zap.String("profile_id", rootID), zap.Error(err))
		} else if ok {
			return ids, nil
		}
	}

	visited := map[string]struct{}{rootID: {}}
	frontier := []string{rootID}
	result := make([]string, 0)

	for level := 1; len(frontier) > 0; level++ {
		reports, err := r.dir.ListDirectReports(ctx, companyID, frontier)
		if err != nil {
			return nil, fmt.Errorf("access: list direct reports: %w", err)
		}

		next := make([]string, 0, len(reports))
		for _, p := range reports {
			if p.CompanyID != companyID {
				continue
			}
			if _, seen := visited[p.ID]; seen {
				return nil, fmt.Errorf("%w: profile %s reached twice from %s", ErrHierarchyCycle, p.ID, rootID)
			}
			visited[p.ID] = struct{}{}
			result = append(result, p.ID)
			next = append(next, p.ID)
		}

		if len(next) > 0 && level > r.maxDepth {
			return nil, fmt.Errorf("%w: limit %d from %s", ErrHierarchyTooDeep, r.maxDepth, rootID)
		}
		frontier = next
	}

	sort.Strings(result)

	if r.cache != nil {
		if err := r.cache.SetDownline(ctx, companyID, rootID, result); err != nil {
			r.logger.Warn("downline cache write failed", zap.String("profile_id", rootID), zap.Error(err))
		}
	}

	return result, nil
}
