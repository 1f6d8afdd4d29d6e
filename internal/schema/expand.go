package schema

import (
	"context"
)

// FetchWithReferences 查询并递归附带外键引用行
// 每个顶层行独立展开,同一张表在一条展开链路上至多出现一次,
// 防止互相引用的表结构造成无限递归
func (s *Store) FetchWithReferences(ctx context.Context, table string, q Query) ([]Record, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}

	records, err := s.All(ctx, table, q)
	if err != nil {
		return nil, err
	}

	for _, rec := range records {
		visited := map[string]bool{t.Name: true}
		if err := s.expand(ctx, t, rec, visited); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// expand 展开单行的外键引用
func (s *Store) expand(ctx context.Context, t *Table, rec Record, visited map[string]bool) error {
	for _, fk := range t.ForeignKeys {
		if visited[fk.RefTable] {
			continue
		}
		val, ok := rec[fk.Column]
		if !ok || val == nil {
			continue
		}

		refTable, found := s.registry.Get(fk.RefTable)
		if !found {
			continue
		}

		refRec, err := s.One(ctx, fk.RefTable, Query{Eq: map[string]interface{}{fk.RefColumn: val}})
		if err != nil {
			return err
		}
		if refRec == nil {
			continue
		}

		visited[fk.RefTable] = true
		if err := s.expand(ctx, refTable, refRec, visited); err != nil {
			return err
		}
		rec[fk.RefTable] = refRec
	}
	return nil
}
