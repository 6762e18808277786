package matching

import "strings"

// nameSimilarity is a length-weighted common-subsequence ratio in [0,1] over
// the lower-cased, trimmed strings. Empty on either side scores 0.
func nameSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	return 2 * float64(longestCommonSubsequence(a, b)) / float64(len(a)+len(b))
}

func longestCommonSubsequence(a, b string) int {
	if a == b {
		return len(a)
	}

	dp := make([][]int, len(a)+1)
	for i := range dp {
		dp[i] = make([]int, len(b)+1)
	}

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else if dp[i-1][j] >= dp[i][j-1] {
				dp[i][j] = dp[i-1][j]
			} else {
				dp[i][j] = dp[i][j-1]
			}
		}
	}
	return dp[len(a)][len(b)]
}

// flexibleTerms is the vocabulary of payment-method and consolidation wording
// that signals the bank description legitimately may not name the customer.
var flexibleTerms = []string{
	"factoring",
	"confirming",
	"transferencia",
	"transfer",
	"pago masivo",
	"bulk payment",
	"abono masivo",
	"pago proveedores",
	"cesion de creditos",
	"cesión de créditos",
	"recaudo",
	"letra",
}

func hasFlexibleTerms(description string) bool {
	d := strings.ToLower(description)
	for _, term := range flexibleTerms {
		if strings.Contains(d, term) {
			return true
		}
	}
	return false
}
