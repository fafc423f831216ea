package analyzer

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/mysql-schema-sync/pkg/models"
	"github.com/yourbasic/graph"
)

// ErrDuplicateTable is returned when two entities map to the same table
var ErrDuplicateTable = errors.New("duplicate table")

// SchemaAnalyzer analyzes entity dependencies and sorts entities for synchronization
type SchemaAnalyzer struct {
	Entities           []*models.EntityDescriptor
	DependencyGraph    *graph.Mutable
	EntityIndexMap     map[string]int
	IndexEntityMap     map[int]*models.EntityDescriptor
	UnknownDeps        map[string][]string
	DirectCircularDeps [][]string
	Logger             *logrus.Logger
}

// NewSchemaAnalyzer creates a new schema analyzer
func NewSchemaAnalyzer(entities []*models.EntityDescriptor, logger *logrus.Logger) *SchemaAnalyzer {
	return &SchemaAnalyzer{
		Entities:       entities,
		EntityIndexMap: make(map[string]int),
		IndexEntityMap: make(map[int]*models.EntityDescriptor),
		UnknownDeps:    make(map[string][]string),
		Logger:         logger,
	}
}

// AnalyzeSchema builds the dependency graph. An edge runs from a dependency
// to the entity that depends on it. Dependencies may name either the entity
// or its table.
func (sa *SchemaAnalyzer) AnalyzeSchema() error {
	tables := make(map[string]string, len(sa.Entities))

	for i, entity := range sa.Entities {
		table := entity.TableName()
		if other, exists := tables[table]; exists {
			return fmt.Errorf("entities %s and %s both map to table %s: %w", other, entity.Name, table, ErrDuplicateTable)
		}
		tables[table] = entity.Name

		sa.EntityIndexMap[entity.Name] = i
		sa.EntityIndexMap[table] = i
		sa.IndexEntityMap[i] = entity
	}

	sa.DependencyGraph = graph.New(len(sa.Entities))

	for i, entity := range sa.Entities {
		for _, dep := range entity.DependsOn {
			depIdx, ok := sa.EntityIndexMap[dep]
			if !ok {
				sa.UnknownDeps[entity.Name] = append(sa.UnknownDeps[entity.Name], dep)
				sa.Logger.Warningf("Entity %s depends on unknown entity %s", entity.Name, dep)
				continue
			}
			if depIdx == i {
				sa.Logger.Debugf("Ignoring self dependency of %s", entity.Name)
				continue
			}
			sa.DependencyGraph.Add(depIdx, i)
		}
	}

	return nil
}

// components returns the strongly connected components ordered by their
// first declared member, members in declaration order
func (sa *SchemaAnalyzer) components() [][]int {
	comps := graph.StrongComponents(sa.DependencyGraph)
	for _, c := range comps {
		sort.Ints(c)
	}
	sort.Slice(comps, func(i, j int) bool {
		return comps[i][0] < comps[j][0]
	})
	return comps
}

// GetCircularEntities returns entities involved in circular dependencies
func (sa *SchemaAnalyzer) GetCircularEntities() map[string]bool {
	circular := make(map[string]bool)
	sa.DirectCircularDeps = [][]string{}

	if sa.DependencyGraph == nil {
		return circular
	}

	for _, comp := range sa.components() {
		if len(comp) < 2 {
			continue
		}
		names := make([]string, 0, len(comp))
		for _, v := range comp {
			name := sa.IndexEntityMap[v].Name
			circular[name] = true
			names = append(names, name)
		}
		sa.DirectCircularDeps = append(sa.DirectCircularDeps, names)
	}

	return circular
}

// GetSyncOrder determines the order in which entities should be synchronized.
// Entities on a cycle are kept together in declaration order.
func (sa *SchemaAnalyzer) GetSyncOrder() ([]*models.EntityDescriptor, map[string]bool) {
	if sa.DependencyGraph == nil {
		return sa.Entities, map[string]bool{}
	}

	circular := sa.GetCircularEntities()

	comps := sa.components()
	compOf := make([]int, len(sa.Entities))
	for ci, comp := range comps {
		for _, v := range comp {
			compOf[v] = ci
		}
	}

	condensed := graph.New(len(comps))
	for v := 0; v < sa.DependencyGraph.Order(); v++ {
		sa.DependencyGraph.Visit(v, func(w int, _ int64) (skip bool) {
			if compOf[v] != compOf[w] {
				condensed.Add(compOf[v], compOf[w])
			}
			return
		})
	}

	ordered := make([]*models.EntityDescriptor, 0, len(sa.Entities))
	for _, ci := range stableTopSort(graph.Sort(condensed)) {
		for _, v := range comps[ci] {
			ordered = append(ordered, sa.IndexEntityMap[v])
		}
	}

	return ordered, circular
}

// stableTopSort is Kahn's algorithm that always takes the lowest ready
// vertex, so independent entities keep their declaration order. g must be acyclic.
func stableTopSort(g *graph.Immutable) []int {
	n := g.Order()
	indegree := make([]int, n)
	for v := 0; v < n; v++ {
		g.Visit(v, func(w int, _ int64) (skip bool) {
			indegree[w]++
			return
		})
	}

	done := make([]bool, n)
	order := make([]int, 0, n)
	for len(order) < n {
		next := -1
		for v := 0; v < n; v++ {
			if !done[v] && indegree[v] == 0 {
				next = v
				break
			}
		}
		if next < 0 {
			break
		}
		done[next] = true
		order = append(order, next)
		g.Visit(next, func(w int, _ int64) (skip bool) {
			indegree[w]--
			return
		})
	}
	return order
}
