package api

import (
	"trading-arena/internal/domain"
	"trading-arena/internal/notify"
)

// MessagePortfolio is the websocket message type for portfolio updates.
const MessagePortfolio = "portfolio"

// PortfolioNotifier forwards committed portfolio changes to websocket
// subscribers. It satisfies ledger.Notifier.
type PortfolioNotifier struct {
	Hub *notify.Hub
}

func (n PortfolioNotifier) PortfolioUpdated(agentID string, summary *domain.PortfolioSummary) {
	if n.Hub == nil {
		return
	}
	n.Hub.Publish(agentID, MessagePortfolio, newPortfolioView(summary))
}
