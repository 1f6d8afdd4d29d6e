package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/scarecrow/internal/schema"
	"github.com/scarecrow/pkg/utils"
)

// PostProcessor 查询结果后处理器
type PostProcessor interface {
	// Process 原地修饰结果行,keyword为目标表名
	Process(ctx context.Context, keyword string, records []schema.Record) error
}

// ProgramEnricher 节目结果修饰器
// 为program行补齐题材编码、平均评级与演职人员名单
type ProgramEnricher struct {
	store        *schema.Store
	actorCode    string
	directorCode string
}

// NewProgramEnricher 创建节目修饰器
func NewProgramEnricher(store *schema.Store) *ProgramEnricher {
	return &ProgramEnricher{
		store:        store,
		actorCode:    utils.NameUUID("actor"),
		directorCode: utils.NameUUID("director"),
	}
}

// Process 修饰节目行
func (p *ProgramEnricher) Process(ctx context.Context, keyword string, records []schema.Record) error {
	if keyword != "program" || len(records) == 0 {
		return nil
	}

	for _, rec := range records {
		code, ok := rec["code"].(string)
		if !ok || code == "" {
			continue
		}
		if err := p.attachGenres(ctx, rec, code); err != nil {
			return err
		}
		if err := p.attachRateLevel(ctx, rec, code); err != nil {
			return err
		}
		if err := p.attachPeople(ctx, rec, code); err != nil {
			return err
		}
	}
	return nil
}

// attachGenres 题材编码列表
func (p *ProgramEnricher) attachGenres(ctx context.Context, rec schema.Record, code string) error {
	if !p.store.Registry().Has("program_genre") {
		return nil
	}
	rows, err := p.store.All(ctx, "program_genre", schema.Query{
		Eq: map[string]interface{}{"program_code": code},
	})
	if err != nil {
		return err
	}
	codes := make([]string, 0, len(rows))
	for _, row := range rows {
		if g, ok := row["genre_code"].(string); ok {
			codes = append(codes, g)
		}
	}
	rec["genre_codes"] = codes
	return nil
}

// attachRateLevel 平均评级
func (p *ProgramEnricher) attachRateLevel(ctx context.Context, rec schema.Record, code string) error {
	if !p.store.Registry().Has("movie_rate") {
		return nil
	}
	rows, err := p.store.All(ctx, "movie_rate", schema.Query{
		Eq: map[string]interface{}{"program_code": code},
	})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	var sum float64
	var n int
	for _, row := range rows {
		if v, ok := toFloat(row["movie_rate_level"]); ok {
			sum += v
			n++
		}
	}
	if n > 0 {
		rec["movie_rate_level"] = sum / float64(n)
	}
	return nil
}

// attachPeople 演员与导演名单,逗号拼接
func (p *ProgramEnricher) attachPeople(ctx context.Context, rec schema.Record, code string) error {
	if !p.store.Registry().Has("program_people") || !p.store.Registry().Has("people") {
		return nil
	}
	links, err := p.store.All(ctx, "program_people", schema.Query{
		Eq: map[string]interface{}{"program_code": code},
	})
	if err != nil {
		return err
	}

	var actors, directors []string
	for _, link := range links {
		personCode, ok := link["people_code"].(string)
		if !ok {
			continue
		}
		person, err := p.store.One(ctx, "people", schema.Query{
			Eq: map[string]interface{}{"code": personCode},
		})
		if err != nil {
			return err
		}
		if person == nil {
			continue
		}
		name, _ := person["name"].(string)
		switch person["role_code"] {
		case p.actorCode:
			actors = append(actors, name)
		case p.directorCode:
			directors = append(directors, name)
		}
	}

	rec["actor"] = strings.Join(actors, ",")
	rec["director"] = strings.Join(directors, ",")
	return nil
}

// toFloat 宽松数值转换,行值类型随驱动而变
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case []byte:
		var f float64
		if _, err := fmt.Sscanf(string(n), "%g", &f); err == nil {
			return f, true
		}
	case string:
		var f float64
		if _, err := fmt.Sscanf(n, "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}
