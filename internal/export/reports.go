package export

// Report is one CSV file of the monthly export. Queries take the named
// parameters :start_date, :end_date and :website_url.
type Report struct {
	Filename string
	Query    string
}

// Reports is the fixed set written by every monthly run.
var Reports = []Report{
	{
		Filename: "TopCollectivesByNewBackers.csv",
		Query: `
SELECT MAX(c.slug) AS collective, MAX(c.created_at) AS "createdAt", COUNT(*) AS "totalNewBackers",
       MAX(c.website) AS website, MAX(c.twitter_handle) AS twitter, MAX(c.description) AS description
FROM members m
LEFT JOIN collectives c ON m.collective_id = c.id
WHERE m.created_at > :start_date
  AND m.created_at < :end_date
  AND m.role = 'BACKER'
GROUP BY m.collective_id
ORDER BY "totalNewBackers" DESC`,
	},
	{
		Filename: "TopNewCollectivesByDonations.csv",
		Query: `
SELECT CAST(SUM(t.amount) AS float) / 100 AS "totalAmount", MAX(t.currency) AS currency, MAX(c.slug) AS collective,
       MAX(c.website) AS website, MAX(c.twitter_handle) AS twitter, MAX(c.description) AS description
FROM transactions t
LEFT JOIN collectives c ON c.id = t.collective_id
WHERE t.created_at > :start_date
  AND c.created_at > :start_date
  AND t.created_at < :end_date
  AND c.created_at < :end_date
  AND t.type = 'CREDIT'
  AND t.platform_fee_in_host_currency > 0
GROUP BY t.collective_id
ORDER BY "totalAmount" DESC`,
	},
	{
		Filename: "Top100Backers.csv",
		Query: `
WITH res AS (
  SELECT CONCAT(:website_url, '/', MAX(backer.slug)) AS backer, CAST(SUM(t.amount) AS float) / 100 AS amount,
         MAX(t.currency) AS currency, STRING_AGG(DISTINCT c.slug, ', ') AS "collectives supported",
         MAX(backer.twitter_handle) AS twitter, MAX(backer.description) AS description, MAX(backer.website) AS website
  FROM transactions t
  LEFT JOIN collectives backer ON backer.id = t.from_collective_id
  LEFT JOIN collectives c ON c.id = t.collective_id
  WHERE t.created_at > :start_date
    AND t.created_at < :end_date
    AND t.type = 'CREDIT'
    AND t.platform_fee_in_host_currency > 0
  GROUP BY t.from_collective_id
  ORDER BY amount DESC
)
SELECT ROW_NUMBER() OVER (ORDER BY amount DESC) AS "#", * FROM res LIMIT 100`,
	},
	{
		Filename: "transactions.csv",
		Query: `
SELECT t.created_at AS "createdAt", c.slug AS "collective slug", t.type AS "transaction type",
       CAST(t.amount AS float) / 100 AS amount, t.currency, fc.slug AS "from slug", fc.type AS "from type",
       t.description, e.category AS "expense category", h.slug AS "host slug", t.host_currency AS "hostCurrency",
       pm.service AS "payment processor", pm.type AS "payment method type",
       CAST(t.payment_processor_fee_in_host_currency AS float) / 100 AS "paymentProcessorFeeInHostCurrency",
       CAST(t.host_fee_in_host_currency AS float) / 100 AS "hostFeeInHostCurrency",
       CAST(t.platform_fee_in_host_currency AS float) / 100 AS "platformFeeInHostCurrency"
FROM transactions t
LEFT JOIN collectives fc ON fc.id = t.from_collective_id
LEFT JOIN collectives c ON c.id = t.collective_id
LEFT JOIN collectives h ON h.id = t.host_collective_id
LEFT JOIN payment_methods pm ON pm.id = t.payment_method_id
LEFT JOIN expenses e ON e.id = t.expense_id
WHERE t.created_at >= :start_date AND t.created_at < :end_date
ORDER BY t.id ASC`,
	},
	{
		Filename: "expenses.csv",
		Query: `
SELECT e.id, c.slug AS "collective slug", e.created_at AS "createdAt", e.updated_at AS "updatedAt", e.status,
       e.category, CAST(e.amount AS float) / 100 AS amount, e.currency, e.incurred_at AS "incurredAt",
       uc.slug AS "user slug", e.description, e.payout_method AS "payoutMethod", t.created_at AS "paidAt"
FROM expenses e
LEFT JOIN users u ON u.id = e.user_id
LEFT JOIN collectives uc ON u.collective_id = uc.id
LEFT JOIN collectives c ON e.collective_id = c.id
LEFT JOIN transactions t ON t.expense_id = e.id
WHERE e.created_at >= :start_date AND e.created_at < :end_date
  AND e.deleted_at IS NULL`,
	},
}
