package exception

import "errors"

var (
	ErrPortfolioInfeasible     = errors.New("portfolio: target return unattainable under weight cap")
	ErrPortfolioInvalidInput   = errors.New("portfolio: invalid optimizer input")
	ErrPortfolioNoStrategies   = errors.New("portfolio: no strategies to allocate")
	ErrPortfolioDidNotConverge = errors.New("portfolio: optimizer did not converge")
)
