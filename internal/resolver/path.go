package resolver

import (
	"strings"

	"github.com/scarecrow/pkg/errors"
)

// CompoundPath 复合资源路径
// /api/a/1/b/2/c 解析为 Tables=[a,b,c] IDs=[1,2],末表为查询目标;
// /api/a/1/b/2 则定位b表中的具体实例
type CompoundPath struct {
	Tables []string
	IDs    []string
}

// Keyword 查询目标表
func (p *CompoundPath) Keyword() string {
	return p.Tables[len(p.Tables)-1]
}

// IsCompound 是否跨表
func (p *CompoundPath) IsCompound() bool {
	return len(p.Tables) > 1
}

// KeywordIDs 目标表自身的ID列表,集合请求返回nil
func (p *CompoundPath) KeywordIDs() []string {
	if len(p.Tables) != len(p.IDs) {
		return nil
	}
	last := p.IDs[len(p.IDs)-1]
	return strings.Split(last, ",")
}

// PathIDs 绑定到前置表的ID,与Tables[:n-1]一一对应
func (p *CompoundPath) PathIDs() []string {
	if len(p.Tables) == len(p.IDs) {
		return p.IDs[:len(p.IDs)-1]
	}
	return p.IDs
}

// ParsePath 解析复合路径
// 表名与ID交替出现,表数与ID数之差只能为0或1;
// 逗号列表与斜杠链路不可混用
func ParsePath(table, rest string) (*CompoundPath, error) {
	rest = strings.Trim(rest, "/")

	if rest != "" && strings.Contains(rest, ",") && strings.Contains(rest, "/") {
		return nil, errors.ErrMalformedRequest
	}

	segments := []string{table}
	if rest != "" {
		segments = append(segments, strings.Split(rest, "/")...)
	}

	p := &CompoundPath{}
	for i, seg := range segments {
		if seg == "" {
			return nil, errors.ErrMalformedRequest
		}
		if i%2 == 0 {
			p.Tables = append(p.Tables, seg)
		} else {
			p.IDs = append(p.IDs, seg)
		}
	}

	diff := len(p.Tables) - len(p.IDs)
	if diff != 0 && diff != 1 {
		return nil, errors.ErrMalformedRequest
	}
	return p, nil
}
