// Package gam fits a generalized additive model with one smooth term
// by penalized regression.
//
// The model is
//
//	weight = intercept + f(unix time) + error
//
// with f represented on a low-rank spline basis from [basis] and its
// wiggliness controlled by a smoothing parameter chosen by restricted
// maximum likelihood (REML). The error distribution is either Gaussian
// or a scaled Student-t ("scat") fitted by iteratively reweighted
// least squares, which keeps the fit close to Gaussian while robust to
// heavy-tailed residuals. An optional extra penalty on the wiggliness
// null space lets REML shrink the whole term to zero (automatic term
// selection).
//
// Fits are deterministic: identical data and configuration follow the
// identical optimizer path and produce identical smoothing parameters.
package gam
