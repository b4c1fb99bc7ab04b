package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/topup/internal/cache"
	"github.com/smallbiznis/topup/internal/clock"
	"github.com/smallbiznis/topup/internal/product/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Cache cache.ProductCache
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
	cache cache.ProductCache
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("product.service"),
		repo:  p.Repo,
		genID: p.GenID,
		cache: p.Cache,
		clock: p.Clock,
	}
}

func (s *Service) Get(ctx context.Context, ref string) (*domain.Product, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, domain.ErrInvalidID
	}

	if s.cache != nil {
		if item, ok := s.cache.Get(ctx, ref); ok && item.Active {
			return item, nil
		}
	}

	item, err := s.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	if item == nil || !item.Active {
		return nil, domain.ErrNotFound
	}

	if s.cache != nil {
		s.cache.Set(ctx, ref, item)
	}
	return item, nil
}

func (s *Service) lookup(ctx context.Context, ref string) (*domain.Product, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		if id <= 0 {
			return nil, domain.ErrInvalidID
		}
		return s.repo.FindByID(ctx, s.db, id)
	}
	return s.repo.FindByCode(ctx, s.db, slug.Make(ref))
}

func (s *Service) List(ctx context.Context) ([]domain.Product, error) {
	return s.repo.List(ctx, s.db, true)
}

func (s *Service) Upsert(ctx context.Context, req domain.UpsertRequest) (*domain.Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if req.Coins <= 0 {
		return nil, domain.ErrInvalidCoins
	}
	if !req.PriceINR.IsPositive() || !req.PriceUSD.IsPositive() {
		return nil, domain.ErrInvalidPrice
	}

	gameType := strings.ToLower(strings.TrimSpace(req.GameType))
	if gameType == "" {
		gameType = "bgmi"
	}
	if !domain.ValidGameType(gameType) {
		return nil, domain.ErrInvalidGameType
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		code = name
	}
	code = slug.Make(code)

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := s.clock.Now()
	p := &domain.Product{
		ID:          s.genID.Generate().Int64(),
		Code:        code,
		Name:        name,
		Description: optionalString(req.Description),
		Coins:       req.Coins,
		PriceINR:    req.PriceINR.Round(2),
		PriceUSD:    req.PriceUSD.Round(2),
		Popular:     req.Popular,
		Badge:       optionalString(req.Badge),
		ImageURL:    optionalString(req.ImageURL),
		GameType:    gameType,
		Active:      active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Upsert(ctx, s.db, p); err != nil {
		return nil, err
	}

	stored, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, domain.ErrNotFound
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, code, strconv.FormatInt(stored.ID, 10))
	}
	s.log.Info("product upserted",
		zap.String("code", stored.Code),
		zap.Int64("coins", stored.Coins),
		zap.Bool("active", stored.Active),
	)
	return stored, nil
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
