package topic

// MetaData describes the topic manager to overlay clients.
type MetaData struct {
	Name             string `json:"name"`
	ShortDescription string `json:"shortDescription"`
}

const managerDocs = `# Cathays Energy Overlay

This overlay indexes energy orders and lifecycle records in Cardiff - Cathays.

## field order (pushdrop)

| index | name       | notes                                                        |
|------:|------------|--------------------------------------------------------------|
| 0     | kind       | 'offer', 'demand', 'commitment', 'contract' or 'proof'       |
| 1     | topic      | fixed to 'tm_cathays'                                        |
| 2     | actor      | optional actor public key, or 'null'                         |
| 3     | parent     | parent txid for linked records, or 'null'                    |
| 4     | createdAt  | iso timestamp                                                |
| 5     | expiresAt  | iso timestamp                                                |
| 6     | quantity   | number (kWh)                                                 |
| 7     | price      | number                                                       |
| 8     | currency   | 'GBP' or 'SATS'                                              |
| 9+    | extras     | proof extras when kind is 'proof'                            |
`

// Documentation returns operator-facing markdown for the manager.
func (m *Manager) Documentation() string { return managerDocs }

// MetaData returns the manager's overlay listing entry.
func (m *Manager) MetaData() MetaData {
	return MetaData{
		Name:             m.cfg.Topic,
		ShortDescription: "Energy trading orders and lifecycle records for Cardiff - Cathays",
	}
}
