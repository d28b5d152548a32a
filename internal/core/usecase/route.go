package usecase

import "github.com/agromitra/citrus-advisor/internal/core/domain"

// KnowledgeRouter maps a resolved intent to target namespaces. The mapping
// is a static table; routing never consults external services.
type KnowledgeRouter struct{}

func NewKnowledgeRouter() *KnowledgeRouter {
	return &KnowledgeRouter{}
}

func (r *KnowledgeRouter) Route(intent domain.Intent) domain.Route {
	switch intent.Label {
	case domain.IntentDisease:
		return domain.Route{Namespaces: []domain.Namespace{domain.NamespaceDisease}}
	case domain.IntentScheme:
		return domain.Route{Namespaces: []domain.Namespace{domain.NamespaceScheme}}
	case domain.IntentHybrid:
		return domain.Route{Namespaces: []domain.Namespace{domain.NamespaceDisease, domain.NamespaceScheme}}
	default:
		return domain.Route{NeedsClarification: true}
	}
}
