package user

import (
	"crypto/rand"
	"math/big"
)

const (
	pwdLowers   = "abcdefghijkmnopqrstuvwxyz"
	pwdUppers   = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	pwdDigits   = "23456789"
	pwdSpecials = "!@#$%&*?"
	genPwdLen   = 14
)

// GeneratePassword returns a random one-time password that satisfies the password policy.
func GeneratePassword() (string, error) {
	all := pwdLowers + pwdUppers + pwdDigits + pwdSpecials
	pwd := make([]byte, 0, genPwdLen)
	for _, set := range []string{pwdLowers, pwdUppers, pwdDigits, pwdSpecials} {
		c, err := randChar(set)
		if err != nil {
			return "", err
		}
		pwd = append(pwd, c)
	}
	for len(pwd) < genPwdLen {
		c, err := randChar(all)
		if err != nil {
			return "", err
		}
		pwd = append(pwd, c)
	}

	// shuffle so the required classes are not always in front
	for i := len(pwd) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		pwd[i], pwd[j.Int64()] = pwd[j.Int64()], pwd[i]
	}
	return string(pwd), nil
}

func randChar(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, err
	}
	return set[n.Int64()], nil
}
