package automation

import (
	"fmt"
	"hash/fnv"
	"time"

	"whatsapp-flowbot/internal/models"

	"github.com/patrickmn/go-cache"
)

// GraphCache keeps parsed flow graphs keyed by chatbot id and definition content,
// so an edited definition is parsed afresh. A nil cache parses every time.
type GraphCache struct {
	graphs *cache.Cache
}

func NewGraphCache(ttl time.Duration) *GraphCache {
	return &GraphCache{graphs: cache.New(ttl, 2*ttl)}
}

// Load returns the parsed graph of a chatbot. Cached graphs are shared and must not be mutated.
func (g *GraphCache) Load(bot *models.Chatbot) (FlowGraph, error) {
	if g == nil || g.graphs == nil {
		return ParseGraph(bot.Flow)
	}

	h := fnv.New64a()
	h.Write([]byte(bot.Flow))
	key := fmt.Sprintf("%d:%x", bot.ID, h.Sum64())

	if cached, ok := g.graphs.Get(key); ok {
		return cached.(FlowGraph), nil
	}
	graph, err := ParseGraph(bot.Flow)
	if err != nil {
		return nil, err
	}
	g.graphs.Set(key, graph, cache.DefaultExpiration)
	return graph, nil
}
